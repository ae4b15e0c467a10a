//go:build linux

package main

import (
	"fmt"
	"io"

	"github.com/hymofs/overlay"
	"github.com/hymofs/overlay/kernel"
)

func cmdHide(stdout, stderr io.Writer, client kernel.Client, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "hymoctl: hide requires a subcommand: add, remove, list")
		return 2
	}

	sub, rest := args[0], args[1:]

	switch sub {
	case "add":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "hymoctl: hide add requires exactly one path")
			return 2
		}

		if err := overlay.AddUserHideRule(client, rest[0]); err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}

		return 0

	case "remove":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "hymoctl: hide remove requires exactly one path")
			return 2
		}

		if err := overlay.RemoveUserHideRule(rest[0]); err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}

		return 0

	case "list":
		rules, err := overlay.ListUserHideRules()
		if err != nil {
			fmt.Fprintln(stderr, "hymoctl:", err)
			return 1
		}

		for _, rule := range rules {
			fmt.Fprintln(stdout, rule.Path)
		}

		return 0

	default:
		fmt.Fprintf(stderr, "hymoctl: unknown hide subcommand %q\n", sub)
		return 2
	}
}
