// Copyright 2025-2026 Tigro14

package router

import (
	"fmt"
	"strings"

	"github.com/Tigro14/meshbot-sub004/pkg/mesh"
)

// Commands that only make sense on one network, mapped to the closest
// equivalent on the other side. An empty equivalent means the feature has
// no counterpart there.
var (
	meshtasticOnly = map[string]string{
		"/nodes":      "/contacts",
		"/trace":      "/path",
		"/neighbors":  "",
		"/channelset": "",
	}
	meshcoreOnly = map[string]string{
		"/contacts": "/nodes",
		"/path":     "/trace",
		"/advert":   "",
	}
)

// matchesCommand reports whether text invokes the given command, using a
// word-boundary check so "/m" never matches an incoming "/map".
func matchesCommand(text, command string) bool {
	if !strings.HasPrefix(text, command) {
		return false
	}
	if len(text) == len(command) {
		return true
	}
	rest := text[len(command):]
	return rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n'
}

// checkIsolation returns a redirect reply when text invokes a command that
// belongs to the other network. The empty string means the command is
// allowed here.
func checkIsolation(origin mesh.Network, text string) string {
	var foreign map[string]string
	switch origin {
	case mesh.NetMeshtastic:
		foreign = meshcoreOnly
	case mesh.NetMeshCore:
		foreign = meshtasticOnly
	default:
		return ""
	}

	for command, equivalent := range foreign {
		if !matchesCommand(text, command) {
			continue
		}
		if equivalent == "" {
			return fmt.Sprintf("%s is not available on this network", command)
		}
		return fmt.Sprintf("%s is not available on this network, use %s instead", command, equivalent)
	}
	return ""
}
