package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/slskd/slskgo/pkg/errdefs"
)

// envPrefix is prepended to every environment override. The variable
// for a leaf is the prefix plus the uppercased yaml path with dots as
// underscores: soulseek.listenPort -> SLSKD_SOULSEEK_LISTENPORT.
const envPrefix = "SLSKD_"

// Load builds the effective options: defaults, overlaid by the YAML
// file at path if it exists, overlaid by environment variables, then
// validated. A missing file is not an error; a malformed one is.
func Load(path string) (Options, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &opts); err != nil {
			return Options{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment only.
	default:
		return Options{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := applyEnv(&opts, os.LookupEnv); err != nil {
		return Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Parse builds options from a YAML document alone (defaults overlaid
// by data, no environment), validating the result. It backs the
// validate endpoint and PUT /options/yaml.
func Parse(data []byte) (Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, errdefs.Validationf("failed to parse YAML: %v", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// applyEnv walks the leaves of the options tree and overrides each one
// whose environment variable is set. Map-valued subtrees (user groups,
// relay agents) have no environment form and are skipped.
func applyEnv(o *Options, lookup func(string) (string, bool)) error {
	return walkEnv(reflect.ValueOf(o).Elem(), "", lookup)
}

func walkEnv(v reflect.Value, path string, lookup func(string) (string, bool)) error {
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := yamlName(field)
		if name == "-" {
			continue
		}
		childPath := joinPath(path, name)
		child := v.Field(i)

		switch child.Kind() {
		case reflect.Struct:
			if err := walkEnv(child, childPath, lookup); err != nil {
				return err
			}
		case reflect.Map:
			continue
		default:
			envName := envPrefix + strings.ToUpper(strings.ReplaceAll(childPath, ".", "_"))
			raw, ok := lookup(envName)
			if !ok {
				continue
			}
			if err := setLeaf(child, raw); err != nil {
				return errdefs.Validationf("invalid value for %s: %v", envName, err)
			}
		}
	}
	return nil
}

func setLeaf(v reflect.Value, raw string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", v.Type())
		}
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(v.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(v.Type().Elem()))
			}
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}

// yamlName returns the effective yaml key for a struct field.
func yamlName(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" {
		return strings.ToLower(field.Name)
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return strings.ToLower(field.Name)
	}
	return name
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
