package cli

import (
	"fmt"

	"github.com/arloliu/go-ercp/device"
)

// Operation is a device operation selected on the command line.
type Operation int

const (
	OpPing Operation = iota + 1
	OpReset
	OpProtocol
	OpVersion
	OpMaxLength
	OpDescription
	OpCommand
	OpLog
	OpInfo
)

var operationNames = map[Operation]string{
	OpPing:        "ping",
	OpReset:       "reset",
	OpProtocol:    "protocol",
	OpVersion:     "version",
	OpMaxLength:   "max-length",
	OpDescription: "description",
	OpCommand:     "command",
	OpLog:         "log",
	OpInfo:        "info",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}

	return fmt.Sprintf("Operation(%d)", int(o))
}

// Command is a parsed operation with its arguments.
type Command struct {
	Op Operation
	// Component is the argument of OpVersion.
	Component device.Component
	// Code and Value are the hexadecimal arguments of OpCommand. They are decoded by the
	// session, so malformed hex is reported like any other operation error.
	Code  string
	Value string
}

// ParseCommand parses the operation and its arguments.
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("missing operation")
	}

	name, rest := args[0], args[1:]

	var op Operation
	for o, n := range operationNames {
		if n == name {
			op = o
			break
		}
	}

	switch op {
	case 0:
		return Command{}, fmt.Errorf("unknown operation %q", name)

	case OpVersion:
		if len(rest) != 1 {
			return Command{}, fmt.Errorf("version: expected 1 argument <component>, got %d", len(rest))
		}

		component, err := device.ParseComponent(rest[0])
		if err != nil {
			return Command{}, fmt.Errorf("version: %w", err)
		}

		return Command{Op: op, Component: component}, nil

	case OpCommand:
		if len(rest) < 1 || len(rest) > 2 {
			return Command{}, fmt.Errorf("command: expected <hex-code> [hex-value], got %d arguments", len(rest))
		}

		cmd := Command{Op: op, Code: rest[0]}
		if len(rest) == 2 {
			cmd.Value = rest[1]
		}

		return cmd, nil

	default:
		if len(rest) != 0 {
			return Command{}, fmt.Errorf("%s: unexpected arguments %q", op, rest)
		}

		return Command{Op: op}, nil
	}
}
