package main

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is a command line: the command name followed by its arguments.
type Command []string

// String returns a space-separated command line.
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// CommandArgs sets a variadic argument set of string pointers to the command's
// arguments.  It returns an error if there aren't enough arguments and an 'overflow'
// slice with all arguments beyond those needed for targets.
func (cmd Command) CommandArgs(targets ...*string) (overflow []string, err error) {
	args := cmd[1:]
	if len(args) < len(targets) {
		return nil, fmt.Errorf("%q needs %d arguments, got %d", cmd.Name(), len(targets), len(args))
	}
	for i, target := range targets {
		*target = args[i]
	}
	return args[len(targets):], nil
}

// Int32Args parses each argument string as a 32-bit integer.
func Int32Args(args ...string) ([]int32, error) {
	values := make([]int32, len(args))
	for i, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad integer argument %q: %v", arg, err)
		}
		values[i] = int32(n)
	}
	return values, nil
}

// ExactArgs is like CommandArgs but rejects arguments beyond the targets.
func (cmd Command) ExactArgs(targets ...*string) error {
	overflow, err := cmd.CommandArgs(targets...)
	if err != nil {
		return err
	}
	if len(overflow) != 0 {
		return fmt.Errorf("%q takes %d arguments, got extra %q", cmd.Name(), len(targets), strings.Join(overflow, " "))
	}
	return nil
}
