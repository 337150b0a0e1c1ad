package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmarket/openmarket-cli/internal/iocontext"
	"github.com/openmarket/openmarket-cli/internal/outfmt"
)

func TestFlagAliasMarksCanonicalChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	var images []string
	var desc string
	cmd.Flags().StringArrayVar(&images, "image", nil, "")
	cmd.Flags().StringVar(&desc, "description", "", "")
	flagAlias(cmd.Flags(), "image", "img")
	flagAlias(cmd.Flags(), "description", "desc")

	require.NoError(t, cmd.Flags().Parse([]string{"--img", "a.png", "--image", "b.png", "--desc", "mug"}))

	assert.Equal(t, []string{"a.png", "b.png"}, images)
	assert.Equal(t, "mug", desc)
	assert.True(t, flagOrAliasChanged(cmd, "description"))
	assert.True(t, cmd.Flags().Changed("description"))
	assert.True(t, cmd.Flags().Lookup("desc").Hidden)
}

func TestFlagAliasUnknownPanics(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	assert.Panics(t, func() { flagAlias(cmd.Flags(), "missing", "m") })
}

func TestReadAllLimited(t *testing.T) {
	data, err := readAllLimited(strings.NewReader("abcd"), 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	_, err = readAllLimited(strings.NewReader("abcde"), 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 4 bytes")
}

func TestParseBoolEnv(t *testing.T) {
	for value, want := range map[string]bool{"1": true, "TRUE": true, " yes ": true, "on": true, "0": false, "": false, "nope": false} {
		t.Setenv("OM_TEST_BOOL", value)
		assert.Equal(t, want, parseBoolEnv("OM_TEST_BOOL"), "value %q", value)
	}
}

func newTestCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(ctx)
	return cmd
}

func TestConfirmAction(t *testing.T) {
	t.Cleanup(func() { flags = defaultFlags() })

	tests := []struct {
		name    string
		input   string
		opts    confirmOptions
		mode    outfmt.Mode
		noInput bool
		want    bool
		wantErr bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "uppercase", input: "Y\n", want: true},
		{name: "no", input: "n\n"},
		{name: "eof", input: ""},
		{name: "expected word", input: "delete\n", opts: confirmOptions{Expected: "DELETE"}, want: true},
		{name: "force", opts: confirmOptions{Force: true}, want: true},
		{name: "json without force", mode: outfmt.JSON, wantErr: true},
		{name: "no input without force", noInput: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags = defaultFlags()
			flags.NoInput = tt.noInput
			streams, _, errOut := iocontext.Buffered(tt.input)
			ctx := iocontext.WithIO(outfmt.WithMode(context.Background(), tt.mode), streams)
			tt.opts.Prompt = "Proceed? "

			got, err := confirmAction(newTestCommand(ctx), tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if !tt.opts.Force {
				assert.Contains(t, errOut.String(), "Proceed? ")
			}
		})
	}
}

func TestRunEPrintsStructuredJSONError(t *testing.T) {
	streams, _, errOut := iocontext.Buffered("")
	ctx := iocontext.WithIO(outfmt.WithMode(context.Background(), outfmt.JSON), streams)

	run := RunE(func(*cobra.Command, []string) error {
		return errors.New("--page must be >= 1")
	})
	err := run(newTestCommand(ctx), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errAlreadyHandled)
	assert.Equal(t, exitUsage, ExitCode(err))
	payload := decodeJSON(t, errOut.String())
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "--page must be >= 1", errObj["message"])
}

func TestRunEPrintsTextError(t *testing.T) {
	streams, _, errOut := iocontext.Buffered("")
	ctx := iocontext.WithIO(context.Background(), streams)

	run := RunE(func(*cobra.Command, []string) error { return errors.New("boom") })
	err := run(newTestCommand(ctx), nil)

	require.Error(t, err)
	assert.Equal(t, exitGeneric, ExitCode(err))
	assert.Contains(t, errOut.String(), "boom")
}
