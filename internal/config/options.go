// Package config loads the dawio binary's options and stream profiles and
// watches profile files for changes.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "DAWIO_"

var durationType = reflect.TypeOf(time.Duration(0))

// Load fills the exported fields of the struct opts points to. Values come,
// from strongest to weakest, from flags the user set on cmd, from
// DAWIO_<env tag> variables, then from the TOML file named by the struct's
// Config field (dotted toml tag paths). Fields none of them mention keep
// their flag defaults. A missing options file is not an error.
func Load(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: Load needs a pointer to a struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	explicit := map[string]bool{}
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) { explicit[f.Name] = true })
	}

	var file map[string]any
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		data, err := os.ReadFile(f.String())
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return fmt.Errorf("read options file: %w", err)
		default:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse options file %s: %w", f.String(), err)
			}
		}
	}

	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		if !sf.IsExported() || explicit[flagName(sf.Name)] {
			continue
		}
		if path := sf.Tag.Get("toml"); path != "" && path != "-" && file != nil {
			if raw, ok := lookup(file, path); ok {
				if err := assign(field, raw); err != nil {
					return fmt.Errorf("options file %s: %w", path, err)
				}
			}
		}
		if key := sf.Tag.Get("env"); key != "" {
			if s, ok := os.LookupEnv(EnvPrefix + key); ok && s != "" {
				if err := assignString(field, s); err != nil {
					return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
				}
			}
		}
	}
	return nil
}

// flagName turns a field name into the kebab-case flag huma derives from
// it: "LogLevel" -> "log-level".
func flagName(field string) string {
	var sb strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			sb.WriteByte('-')
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

func lookup(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	raw, ok := m[parts[len(parts)-1]]
	return raw, ok
}

// assign stores a decoded TOML value. go-toml decodes integers as int64,
// floats as float64 and arrays as []any.
func assign(field reflect.Value, raw any) error {
	if s, ok := raw.(string); ok {
		return assignString(field, s)
	}
	switch field.Kind() {
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("want a boolean, got %T", raw)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := raw.(int64)
		if !ok {
			return fmt.Errorf("want an integer, got %T", raw)
		}
		if field.Type() == durationType {
			n *= int64(time.Second)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := raw.(int64)
		if !ok || n < 0 {
			return fmt.Errorf("want a non-negative integer, got %v", raw)
		}
		field.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch n := raw.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		default:
			return fmt.Errorf("want a number, got %T", raw)
		}
	case reflect.Slice:
		items, ok := raw.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("want an array of strings, got %T", raw)
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = fmt.Sprint(it)
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func assignString(field reflect.Value, s string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported field type %s", field.Type())
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
