package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/slskd/slskgo/pkg/types"
)

// DiffEntry describes one leaf that differs between two option
// snapshots.
type DiffEntry struct {
	Path string
	Old  any
	New  any

	// RequiresRestart is set when the leaf or any ancestor carries the
	// restart tag; the change only takes effect on process restart.
	RequiresRestart bool

	// SoulseekScoped is set for leaves under the soulseek subtree;
	// these changes are folded into a connection patch for the peer
	// client.
	SoulseekScoped bool

	// Sensitive is set for secret-bearing leaves; format with
	// OldString/NewString so values never reach a log line.
	Sensitive bool
}

// OldString formats the previous value, redacting sensitive leaves.
func (e DiffEntry) OldString() string {
	return e.format(e.Old)
}

// NewString formats the new value, redacting sensitive leaves.
func (e DiffEntry) NewString() string {
	return e.format(e.New)
}

func (e DiffEntry) format(v any) string {
	if e.Sensitive {
		return "<redacted>"
	}
	return fmt.Sprintf("%v", v)
}

// Diff walks both option trees in lockstep and returns one entry per
// leaf whose value differs, in schema order. Equal snapshots yield an
// empty diff.
func Diff(a, b Options) []DiffEntry {
	var entries []DiffEntry
	diffValue(reflect.ValueOf(a), reflect.ValueOf(b), "", false, &entries)
	return entries
}

func diffValue(av, bv reflect.Value, path string, restart bool, out *[]DiffEntry) {
	switch av.Kind() {
	case reflect.Struct:
		t := av.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := yamlName(field)
			if name == "-" {
				continue
			}
			childRestart := restart || field.Tag.Get("restart") == "true"
			diffValue(av.Field(i), bv.Field(i), joinPath(path, name), childRestart, out)
		}

	case reflect.Map:
		keys := map[string]bool{}
		for _, k := range av.MapKeys() {
			keys[k.String()] = true
		}
		for _, k := range bv.MapKeys() {
			keys[k.String()] = true
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)

		elem := av.Type().Elem()
		for _, k := range sorted {
			kv := reflect.ValueOf(k)
			avk, bvk := av.MapIndex(kv), bv.MapIndex(kv)
			if !avk.IsValid() {
				avk = reflect.Zero(elem)
			}
			if !bvk.IsValid() {
				bvk = reflect.Zero(elem)
			}
			diffValue(avk, bvk, joinPath(path, k), restart, out)
		}

	case reflect.Slice:
		if !reflect.DeepEqual(av.Interface(), bv.Interface()) {
			emit(path, av.Interface(), bv.Interface(), restart, out)
		}

	default:
		if av.Interface() != bv.Interface() {
			emit(path, av.Interface(), bv.Interface(), restart, out)
		}
	}
}

func emit(path string, old, new any, restart bool, out *[]DiffEntry) {
	*out = append(*out, DiffEntry{
		Path:            path,
		Old:             old,
		New:             new,
		RequiresRestart: restart,
		SoulseekScoped:  strings.HasPrefix(path, "soulseek."),
		Sensitive:       sensitiveLeaf(path),
	})
}

func sensitiveLeaf(path string) bool {
	leaf := path
	if i := strings.LastIndex(path, "."); i >= 0 {
		leaf = path[i+1:]
	}
	leaf = strings.ToLower(leaf)
	return strings.Contains(leaf, "password") || strings.Contains(leaf, "secret")
}

// SoulseekPatch builds the connection patch the peer client applies on
// reload: only the soulseek-scoped leaves that actually changed appear,
// as pointers into the new snapshot's values.
func SoulseekPatch(entries []DiffEntry, next Options) types.ConnectionPatch {
	var patch types.ConnectionPatch
	for _, e := range entries {
		if !e.SoulseekScoped {
			continue
		}
		switch e.Path {
		case "soulseek.address":
			patch.Address = &next.Soulseek.Address
		case "soulseek.username":
			patch.Username = &next.Soulseek.Username
		case "soulseek.password":
			patch.Password = &next.Soulseek.Password
		case "soulseek.description":
			patch.Description = &next.Soulseek.Description
		case "soulseek.listenPort":
			patch.ListenPort = &next.Soulseek.ListenPort
		case "soulseek.connection.timeout":
			patch.ConnectionTimeout = &next.Soulseek.Connection.Timeout
		case "soulseek.connection.buffer":
			patch.ConnectionBuffer = &next.Soulseek.Connection.Buffer
		}
	}
	return patch
}
