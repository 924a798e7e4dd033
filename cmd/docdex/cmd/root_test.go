package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// Then: every subcommand is registered
	want := []string{"index", "search", "status", "watch", "gc", "version"}
	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range want {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}

func TestNewRootCmd_Flags(t *testing.T) {
	root := NewRootCmd()

	require.NotNil(t, root.PersistentFlags().Lookup("root"))
	require.NotNil(t, root.PersistentFlags().Lookup("no-color"))
	require.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// Given: the search command with no arguments
	root := NewRootCmd()
	root.SetArgs([]string{"search"})

	// Then: execution fails on missing args
	err := root.Execute()
	require.Error(t, err)
}
