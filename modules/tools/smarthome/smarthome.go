// Package smarthome compiles the energy saver interface of the smart_home
// environment into the binary. Sessions on smart_home/3 run these tools
// directly instead of synthesizing them from source.
package smarthome

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/toolbench/internal/tool"
)

const (
	// Environment and Interface name the environment interface served by
	// this package.
	Environment = "smart_home"
	Interface   = "3"

	minCelsius = 10.0
	maxCelsius = 30.0
)

func init() {
	tool.RegisterSet(tool.Set{
		Environment: Environment,
		Interface:   Interface,
		Tools:       Tools,
	})
}

// Tools returns the energy saver tools.
func Tools() []tool.Tool {
	return []tool.Tool{
		tool.Adapt(tool.Info{
			Name:        "lights_off",
			Description: "Switch off every light, or only those of one room.",
			Params: []tool.Param{
				{
					Name:        "room",
					Type:        "string",
					Description: "Room to restrict to; empty means the whole home.",
					Schema:      map[string]any{"type": "string"},
				},
			},
		}, lightsOff),
		tool.Adapt(tool.Info{
			Name:        "set_eco_target",
			Description: "Lower the thermostat target to an eco temperature.",
			Params: []tool.Param{
				{
					Name:        "target_celsius",
					Type:        "number",
					Description: "10 to 30, must not exceed the current target.",
					Required:    true,
					Schema:      map[string]any{"type": "number"},
				},
			},
		}, setEcoTarget),
	}
}

func lightsOff(data, args map[string]any) (any, error) {
	room, _ := args["room"].(string)
	devices, _ := data["devices"].(map[string]any)

	changed := []any{}
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		device, ok := devices[id].(map[string]any)
		if !ok || device["kind"] != "light" {
			continue
		}
		if room != "" && device["room"] != room {
			continue
		}
		if on, _ := device["on"].(bool); !on {
			continue
		}
		device["on"] = false
		device["brightness"] = int64(0)
		changed = append(changed, id)
	}
	return map[string]any{"room": room, "switched_off": changed}, nil
}

func setEcoTarget(data, args map[string]any) (any, error) {
	target, ok := args["target_celsius"].(float64)
	if !ok || target < minCelsius || target > maxCelsius {
		return nil, fmt.Errorf("target_celsius must be a number between %g and %g", minCelsius, maxCelsius)
	}
	devices, _ := data["devices"].(map[string]any)
	thermostat, ok := devices["thermostat"].(map[string]any)
	if !ok {
		return nil, errors.New("no thermostat in this home")
	}
	if current, ok := thermostat["target_celsius"].(float64); ok && target > current {
		return nil, fmt.Errorf("eco target %g is above the current target %g", target, current)
	}
	thermostat["target_celsius"] = target
	return map[string]any{"device_id": "thermostat", "target_celsius": target}, nil
}
