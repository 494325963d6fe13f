package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/derlaft/synco/internal/player"
)

// refreshOSD evicts log lines older than LogRetention and pushes the
// resulting overlay to the player. When nothing is left to show and
// playback is running, the overlay is cleared instead of rendered empty.
func (m *Machine) refreshOSD(ctx context.Context) error {
	cutoff := m.now().Add(-LogRetention)
	kept := m.local.Log[:0]
	for _, e := range m.local.Log {
		if e.When.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.local.Log = kept

	if len(m.local.Log) == 0 && !m.local.Paused {
		return m.sendPlayer(ctx, player.OsdOverlay(""))
	}
	return m.sendPlayer(ctx, player.OsdOverlay(m.renderOSD()))
}

func colorTag(ready bool) string {
	if ready {
		return `{\c&H00FF00&}`
	}
	return `{\c&H0000FF&}`
}

// renderOSD builds the ASS overlay markup: a readiness line for "you" and
// "network", a per-peer readiness line, and the log tail, newest first.
func (m *Machine) renderOSD() string {
	status := fmt.Sprintf(`ready: %syou{\r} %snetwork{\r}`, colorTag(m.local.Ready), colorTag(m.local.NetworkReady))

	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	peerLines := make([]string, 0, len(ids))
	for _, id := range ids {
		peerLines = append(peerLines, fmt.Sprintf(`%s%s{\r}`, colorTag(m.peers[id].Ready), id))
	}

	logLines := make([]string, 0, len(m.local.Log))
	for i := len(m.local.Log) - 1; i >= 0; i-- {
		logLines = append(logLines, fmt.Sprintf(`{\fs20}%s{\r}`, m.local.Log[i].Text))
	}

	parts := []string{status}
	if len(peerLines) > 0 {
		parts = append(parts, strings.Join(peerLines, `\N`))
	}
	if len(logLines) > 0 {
		parts = append(parts, strings.Join(logLines, `\N`))
	}
	return `\N\N` + strings.Join(parts, `\N`)
}
