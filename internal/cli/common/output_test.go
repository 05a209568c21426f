package common

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestWriteOutputSuppressesNilPayload(t *testing.T) {
	t.Parallel()

	command := &cobra.Command{}
	stdout := &bytes.Buffer{}
	command.SetOut(stdout)

	var value map[string]any
	if err := WriteOutput(command, OutputJSON, value, nil); err != nil {
		t.Fatalf("WriteOutput returned error: %v", err)
	}
	if got := stdout.String(); got != "" {
		t.Fatalf("expected empty output for nil payload, got %q", got)
	}
}

func TestWriteOutputFormats(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		format string
		want   string
	}{
		{name: "json", format: OutputJSON, want: "{\n  \"slug\": \"acme\"\n}\n"},
		{name: "yaml", format: OutputYAML, want: "slug: acme\n"},
		{name: "text", format: OutputText, want: "slug=acme\n"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			command := &cobra.Command{}
			stdout := &bytes.Buffer{}
			command.SetOut(stdout)

			value := map[string]any{"slug": "acme"}
			err := WriteOutput(command, testCase.format, value, func(w io.Writer, item map[string]any) error {
				_, err := fmt.Fprintf(w, "slug=%s\n", item["slug"])
				return err
			})
			if err != nil {
				t.Fatalf("WriteOutput returned error: %v", err)
			}
			if got := stdout.String(); got != testCase.want {
				t.Fatalf("unexpected output %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestValidateOutputFormatForCommandPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		path    string
		format  string
		wantErr bool
	}{
		{name: "structured command json", path: "remotable find", format: OutputJSON, wantErr: false},
		{name: "text only command auto", path: "remotable config check", format: OutputAuto, wantErr: false},
		{name: "text only command json rejected", path: "remotable config check", format: OutputJSON, wantErr: true},
		{name: "yaml default command yaml", path: "remotable config show", format: OutputYAML, wantErr: false},
		{name: "yaml default command json rejected", path: "remotable config show", format: OutputJSON, wantErr: true},
		{name: "unknown format", path: "remotable find", format: "xml", wantErr: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateOutputFormat(testCase.format)
			if err == nil {
				err = ValidateOutputFormatForCommandPath(testCase.path, testCase.format)
			}
			if (err != nil) != testCase.wantErr {
				t.Fatalf("validate(%q, %q) error=%v, wantErr=%t", testCase.path, testCase.format, err, testCase.wantErr)
			}
		})
	}
}

func TestResolveOutputFormat(t *testing.T) {
	t.Parallel()

	if got := ResolveOutputFormat(&GlobalFlags{Output: OutputAuto}); got != OutputText {
		t.Fatalf("expected auto to resolve to text, got %q", got)
	}
	if got := ResolveOutputFormat(&GlobalFlags{Output: OutputYAML}); got != OutputYAML {
		t.Fatalf("expected yaml, got %q", got)
	}
	if !strings.HasPrefix(ResolveOutputFormat(nil), OutputText) {
		t.Fatal("expected nil flags to resolve to text")
	}
}
