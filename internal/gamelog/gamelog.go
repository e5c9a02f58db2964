// Package gamelog extracts the game outcome from raw Forge log text. The full
// condensing/classification pipeline lives in the analysis service; the worker
// only needs the winner and the round the game ended on for its terminal
// status report.
package gamelog

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	winnerRe  = regexp.MustCompile(`(?i)(.+?)\s+(?:wins\s+the\s+game|has\s+won!?)`)
	winLineRe = regexp.MustCompile(`(?i)wins?\s+the\s+game|game\s+over|winner|wins\s+the\s+match|loses\s+the\s+game`)

	// Two marker formats appear in the wild: "Turn: Turn 12 (Alice)" from
	// newer Forge builds and "Turn 12: Alice" from older ones.
	turnMarkerNew = regexp.MustCompile(`(?i)^Turn:\s*Turn\s+(\d+)\s*\((.+)\)\s*$`)
	turnMarkerOld = regexp.MustCompile(`(?i)^Turn\s+(\d+):\s*(.+?)\s*$`)
)

type turnRange struct {
	turn   int
	player string
	start  int // first line index of the segment
	end    int // last line index, inclusive
}

// Outcome holds what the worker reports about a finished game.
type Outcome struct {
	Winner      string
	WinningTurn int
}

// Extract scans rawLog for a winner declaration and the round it happened in.
// Zero values mean the log carried no recognizable outcome (e.g. a draw or a
// truncated log); callers report the simulation COMPLETED either way.
func Extract(rawLog string) Outcome {
	out := Outcome{}
	if m := winnerRe.FindStringSubmatch(rawLog); len(m) > 1 {
		out.Winner = strings.TrimSpace(m[1])
	}
	out.WinningTurn = winningTurn(rawLog)
	return out
}

func splitLines(rawLog string) []string {
	return strings.Split(strings.ReplaceAll(rawLog, "\r\n", "\n"), "\n")
}

func turnRanges(lines []string) []turnRange {
	var ranges []turnRange
	for i, line := range lines {
		if m := turnMarkerNew.FindStringSubmatch(line); len(m) > 2 {
			n, _ := strconv.Atoi(m[1])
			ranges = append(ranges, turnRange{turn: n, player: m[2], start: i})
			continue
		}
		if m := turnMarkerOld.FindStringSubmatch(line); len(m) > 1 {
			n, _ := strconv.Atoi(m[1])
			player := ""
			if len(m) > 2 {
				player = m[2]
			}
			ranges = append(ranges, turnRange{turn: n, player: player, start: i})
		}
	}
	for i := range ranges {
		if i < len(ranges)-1 {
			ranges[i].end = ranges[i+1].start - 1
		} else {
			ranges[i].end = len(lines) - 1
		}
	}
	return ranges
}

// numPlayers counts the distinct players seen in turn 1. Forge numbers turns
// per player, so the round number is turn/numPlayers rounded up.
func numPlayers(ranges []turnRange) int {
	players := make(map[string]bool)
	for _, tr := range ranges {
		if tr.turn == 1 && tr.player != "" {
			players[tr.player] = true
		}
	}
	if len(players) > 0 {
		return len(players)
	}
	return 4 // Commander default
}

func winningTurn(rawLog string) int {
	lines := splitLines(rawLog)
	ranges := turnRanges(lines)
	players := numPlayers(ranges)

	for i, line := range lines {
		if !winLineRe.MatchString(line) {
			continue
		}
		for _, tr := range ranges {
			if i >= tr.start && i <= tr.end {
				return (tr.turn + players - 1) / players
			}
		}
	}

	// Win line outside any turn segment (or absent): fall back to the last
	// completed round.
	maxTurn := 0
	for _, tr := range ranges {
		if tr.turn > maxTurn {
			maxTurn = tr.turn
		}
	}
	if maxTurn == 0 {
		return 0
	}
	return (maxTurn + players - 1) / players
}
