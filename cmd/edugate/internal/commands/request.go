package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/edugate/internal/gateway"
	"gopkg.in/yaml.v3"
)

type GetCmd struct {
	Path     string   `arg:"" help:"Resource path, e.g. /api/courses"`
	Param    []string `short:"p" help:"Query parameter as key=value, repeatable"`
	Optional bool     `help:"Print nothing instead of failing when the session has ended"`
}

func (g *GetCmd) Run(ctx context.Context, globals *Globals) error {
	params, err := parseParams(g.Param)
	if err != nil {
		return err
	}

	a, err := globals.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.store.Token(); ok {
		a.store.TouchActivity()
	}

	opts := []gateway.QueryOption{gateway.On401Redirect()}
	if g.Optional {
		opts = []gateway.QueryOption{gateway.On401ReturnNull()}
	}

	result, err := gateway.Query[json.RawMessage](ctx, a.client, g.Path, params, opts...)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	return printJSON(os.Stdout, *result)
}

type SendCmd struct {
	Method string `arg:"" help:"HTTP method" enum:"POST,PUT,PATCH,DELETE"`
	Path   string `arg:"" help:"Resource path"`
	Data   string `short:"d" help:"JSON request body" xor:"body"`
	File   string `short:"f" help:"Request body file (.json, .yaml or .yml)" type:"existingfile" xor:"body"`
}

func (s *SendCmd) Run(ctx context.Context, globals *Globals) error {
	body, err := s.body()
	if err != nil {
		return err
	}

	a, err := globals.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.store.Token(); ok {
		a.store.TouchActivity()
	}

	result, err := gateway.JSON[json.RawMessage](ctx, a.client, s.Method, s.Path, body)
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Println("OK")
		return nil
	}

	return printJSON(os.Stdout, *result)
}

func (s *SendCmd) body() (any, error) {
	switch {
	case s.Data != "":
		if !json.Valid([]byte(s.Data)) {
			return nil, errors.New("--data is not valid JSON")
		}
		return json.RawMessage(s.Data), nil
	case s.File != "":
		return readBody(s.File)
	default:
		return nil, nil
	}
}

// readBody loads a request body from a JSON or YAML file.
func readBody(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read body file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", path)
		}
		return json.RawMessage(data), nil
	}

	var body any
	if err := yaml.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to parse YAML body: %w", err)
	}
	return body, nil
}

// parseParams keeps the order the flags were given in.
func parseParams(raw []string) (*gateway.Params, error) {
	params := gateway.NewParams()
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", kv)
		}
		params.Set(key, value)
	}
	return params, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
