// Package gpuviz parses the per node GPU occupancy printed by
// `slurm-gres-viz -i`.
package gpuviz

import (
	"bufio"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const Command = "slurm-gres-viz -i"

// FreeMarkers are the slot markers meaning "free". Anything else is occupied.
const FreeMarkers = "□○_-.0"

type Node struct {
	Name            string   `json:"name"`
	Slots           []string `json:"slots"`
	UsedSlots       int      `json:"used_slots"`
	TotalSlots      int      `json:"total_slots"`
	FreeSlots       int      `json:"free_slots"`
	CPUUsagePercent *int     `json:"cpu_usage_percent,omitempty"`
	MemUsagePercent *int     `json:"mem_usage_percent,omitempty"`
	Placeholder     bool     `json:"placeholder,omitempty"`
}

func (n Node) String() string {
	return fmt.Sprintf("%s %d/%d free", n.Name, n.FreeSlots, n.TotalSlots)
}

// IsFree reports whether a slot marker means the GPU is available.
func IsFree(marker string) bool {
	return strings.ContainsAny(marker, FreeMarkers) && len([]rune(marker)) == 1
}

var lineRe = regexp.MustCompile(`^\s*([A-Za-z0-9._-]+):?\s+` +
	`(?:\[?GPU\]?:?\s*)?\[?\s*(\d+)\s*/\s*(\d+)\s*\]?\s+` +
	`(?:\[([^\]]*)\]|(\S+))\s+` +
	`(?:\[?CPU\]?:?\s*)?\[?\s*(\d+)\s*/\s*(\d+)\s*\]?\s+` +
	`(?:\[?MEM\]?:?\s*)?\[?\s*(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)\s*\]?\s*(?:GiB|GB|G)?\s*$`)

// Match returns the nodes of every line matching the expected pattern, nil
// when none does.
func Match(text string) []Node {
	var nodes []Node
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		m := lineRe.FindStringSubmatch(stripANSI(scanner.Text()))
		if m == nil {
			continue
		}
		used, _ := strconv.Atoi(m[2])
		total, _ := strconv.Atoi(m[3])
		slotText := m[4]
		if slotText == "" {
			slotText = m[5]
		}
		n := Node{
			Name:       m[1],
			UsedSlots:  used,
			TotalSlots: total,
			Slots:      []string{},
		}
		for _, r := range slotText {
			if unicode.IsSpace(r) || r == '|' {
				continue
			}
			s := string(r)
			n.Slots = append(n.Slots, s)
			if IsFree(s) {
				n.FreeSlots++
			}
		}
		cpuUsed, _ := strconv.ParseFloat(m[6], 64)
		cpuTotal, _ := strconv.ParseFloat(m[7], 64)
		memUsed, _ := strconv.ParseFloat(m[8], 64)
		memTotal, _ := strconv.ParseFloat(m[9], 64)
		n.CPUUsagePercent = percent(cpuUsed, cpuTotal)
		n.MemUsagePercent = percent(memUsed, memTotal)
		nodes = append(nodes, n)
	}
	return nodes
}

// Parse never fails: output it cannot understand yields Placeholder().
func Parse(text string) []Node {
	if nodes := Match(text); len(nodes) > 0 {
		return nodes
	}
	return Placeholder()
}

// Placeholder is the fixed node set shown when the status is unknown, every
// slot free.
func Placeholder() []Node {
	const slots = 8
	nodes := make([]Node, 0, 4)
	for i := 1; i <= 4; i++ {
		n := Node{
			Name:        fmt.Sprintf("gpu%02d", i),
			TotalSlots:  slots,
			FreeSlots:   slots,
			Slots:       make([]string, slots),
			Placeholder: true,
		}
		for j := range n.Slots {
			n.Slots[j] = "□"
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// Find returns the node called name.
func Find(nodes []Node, name string) (Node, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

func percent(used, total float64) *int {
	if total <= 0 {
		return nil
	}
	v := int(math.Round(used / total * 100))
	return &v
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
