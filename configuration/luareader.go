// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Facetroute Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration

import (
	"reflect"

	"github.com/yuin/gluamapper"
	lua "github.com/yuin/gopher-lua"

	"github.com/facetroute/facetd/fault"
)

// ParseConfigurationFile - execute a Lua script and map the table it
// returns onto a configuration structure
//
// the script sees its own file name as arg[0], matching the Lua
// command line convention
func ParseConfigurationFile(fileName string, config interface{}) error {

	// config arrives as interface{} so its shape is only checkable at run-time
	rv := reflect.ValueOf(config)
	if reflect.Ptr != rv.Kind() || rv.IsNil() || reflect.Struct != rv.Elem().Kind() {
		return fault.InvalidStructPointer
	}

	L := lua.NewState()
	defer L.Close()
	L.OpenLibs()

	arg := &lua.LTable{}
	arg.Insert(0, lua.LString(fileName))
	L.SetGlobal("arg", arg)

	if err := L.DoFile(fileName); nil != err {
		return err
	}

	table, ok := L.Get(L.GetTop()).(*lua.LTable)
	if !ok {
		return fault.ConfigurationIsNotATable
	}

	// field names in the script match the Go names exactly
	mapper := gluamapper.Mapper{
		Option: gluamapper.Option{
			NameFunc: func(name string) string {
				return name
			},
			TagName: "gluamapper",
		},
	}
	return mapper.Map(table, config)
}
