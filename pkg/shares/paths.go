package shares

import (
	"fmt"
	"path"
	"strings"

	"github.com/slskd/slskgo/pkg/errdefs"
	"github.com/slskd/slskgo/pkg/types"
)

// Virtual paths are alias-rooted: "@@music/Artist/Album/01.flac". The
// alias hides the real filesystem layout from peers. Locally the
// separator is "/"; on the wire it is "\" (Soulseek convention), so
// every externally received filename passes through FromWire first.
const aliasPrefix = "@@"

// ParseDirectives parses configured share directives. Each directive
// is either "/abs/path" (alias = base name) or "alias:/abs/path".
func ParseDirectives(directives []string) ([]types.Share, error) {
	shares := make([]types.Share, 0, len(directives))
	seen := make(map[string]string, len(directives))

	for _, directive := range directives {
		share, err := parseDirective(directive)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[share.Alias]; ok {
			return nil, errdefs.Validationf("share alias %q claimed by both %q and %q", share.Alias, prev, share.Path)
		}
		seen[share.Alias] = share.Path
		shares = append(shares, share)
	}
	return shares, nil
}

func parseDirective(directive string) (types.Share, error) {
	alias, root, found := strings.Cut(directive, ":")
	if !found {
		root = directive
		alias = path.Base(root)
	}
	if strings.ContainsAny(alias, `/\`) || alias == "" || alias == "." {
		return types.Share{}, errdefs.Validationf("share alias %q is not usable", alias)
	}
	if !strings.HasPrefix(root, "/") {
		return types.Share{}, errdefs.Validationf("share path %q is not absolute", root)
	}
	return types.Share{Alias: alias, Path: path.Clean(root)}, nil
}

// VirtualPath builds the virtual form of a file under a share root.
// rel must be slash-separated and relative to the root.
func VirtualPath(alias, rel string) string {
	return aliasPrefix + alias + "/" + strings.TrimPrefix(rel, "/")
}

// SplitVirtual breaks a virtual path into its alias and the
// root-relative remainder.
func SplitVirtual(virtual string) (alias, rel string, err error) {
	if !strings.HasPrefix(virtual, aliasPrefix) {
		return "", "", errdefs.NotFoundf("%q is not a shared path", virtual)
	}
	alias, rel, found := strings.Cut(virtual[len(aliasPrefix):], "/")
	if !found || alias == "" || rel == "" {
		return "", "", errdefs.NotFoundf("%q is not a shared path", virtual)
	}
	if strings.Contains(rel, "..") {
		return "", "", errdefs.Validationf("%q escapes its share root", virtual)
	}
	return alias, rel, nil
}

// VirtualDir returns the directory part of a virtual path.
func VirtualDir(virtual string) string {
	if i := strings.LastIndex(virtual, "/"); i >= 0 {
		return virtual[:i]
	}
	return virtual
}

// ToWire converts a virtual path to its wire form.
func ToWire(virtual string) string {
	return strings.ReplaceAll(virtual, "/", `\`)
}

// FromWire converts a wire filename to the local virtual form.
func FromWire(wire string) string {
	return strings.ReplaceAll(wire, `\`, "/")
}

// agentRepositoryName is the on-disk name for a repository uploaded by
// the named agent.
func agentRepositoryName(agent string) string {
	return fmt.Sprintf("agent-%s.db", agent)
}
