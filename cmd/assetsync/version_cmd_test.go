package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/assetsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runVersion(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := &cobra.Command{Use: "assetsync"}
	root.AddCommand(newVersionCmd())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"version"}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runVersion(t)
	require.NoError(t, err)
	assert.Equal(t, version.AppName+" "+version.Detailed(), strings.TrimSpace(out))

	out, err = runVersion(t, "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short(), strings.TrimSpace(out))
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := runVersion(t, "--json")
	require.NoError(t, err)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Current(), info)
}

func TestVersionCmd_ExclusiveFlags(t *testing.T) {
	_, err := runVersion(t, "--short", "--json")
	assert.Error(t, err)
}
