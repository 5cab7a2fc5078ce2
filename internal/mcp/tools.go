package mcp

import (
	"github.com/hb-chen/skillgate/internal/skill"
)

// TargetArgument is the tool argument carrying the execution target.
const TargetArgument = "target"

// ToolFromDescriptor describes a skill as an MCP tool. Every declared
// parameter becomes a property beside the required target.
func ToolFromDescriptor(d skill.Descriptor) Tool {
	props := map[string]interface{}{
		TargetArgument: map[string]interface{}{
			"type":        "string",
			"description": targetDescription(d.Target),
		},
	}
	for _, p := range d.Parameters {
		props[p.Name] = paramSchema(p)
	}

	return Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"properties":           props,
			"required":             []string{TargetArgument},
			"additionalProperties": false,
		},
	}
}

func paramSchema(p skill.ParamSpec) map[string]interface{} {
	schema := map[string]interface{}{}
	if p.Description != "" {
		schema["description"] = p.Description
	}

	switch p.Type {
	case skill.ParamInt:
		schema["type"] = "integer"
		if p.Min != nil {
			schema["minimum"] = *p.Min
		}
		if p.Max != nil {
			schema["maximum"] = *p.Max
		}
	case skill.ParamBool:
		schema["type"] = "boolean"
	case skill.ParamEnum:
		schema["type"] = "string"
		schema["enum"] = append([]string(nil), p.Values...)
	default:
		schema["type"] = "string"
		if p.Pattern != "" {
			schema["pattern"] = p.Pattern
		}
		if p.MaxLength > 0 {
			schema["maxLength"] = p.MaxLength
		}
	}
	return schema
}

func targetDescription(c skill.TargetClass) string {
	switch c {
	case skill.TargetHostname:
		return "Hostname to run against"
	case skill.TargetIP:
		return "IPv4 or IPv6 address"
	case skill.TargetCIDR:
		return "Network in CIDR notation"
	case skill.TargetHostOrCIDR:
		return "Hostname, IP address or CIDR network"
	case skill.TargetURL:
		return "http or https URL"
	}
	return "Execution target"
}

// splitArguments separates the target from skill parameters.
func splitArguments(args map[string]interface{}) (string, map[string]interface{}) {
	params := make(map[string]interface{}, len(args))
	target := ""
	for k, v := range args {
		if k == TargetArgument {
			target, _ = v.(string)
			continue
		}
		params[k] = v
	}
	return target, params
}
