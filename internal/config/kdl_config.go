package config

import (
	"fmt"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// mergeKDL parses content as KDL and overwrites any field the document
// sets explicitly, leaving the rest of cfg (already carrying defaults)
// untouched.
func mergeKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "network":
			for _, cn := range n.Children {
				if nodeName(cn) == "bind" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Network.BindAddr = s
					}
				}
			}
		case "staging":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "byte_budget":
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Staging.ByteBudget = sz
						}
					} else if v, ok := firstIntArg(cn); ok {
						cfg.Staging.ByteBudget = int64(v)
					}
				case "sort_pointer":
					if s, ok := firstStringArg(cn); ok {
						cfg.Staging.SortPointer = s
					}
				}
			}
		case "store":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "admission_p":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Store.AdmissionP = v
					}
				case "dictionary_threshold":
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Store.DictionaryThresholdBytes = sz
						}
					} else if v, ok := firstIntArg(cn); ok {
						cfg.Store.DictionaryThresholdBytes = int64(v)
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "command_channel_capacity":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.CommandChannelCapacity = v
					}
				case "metrics_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MetricsIntervalMs = v
					}
				}
			}
		case "persist":
			for _, cn := range n.Children {
				if nodeName(cn) == "dir" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Persist.Dir = s
					}
				}
			}
		case "query":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "default_deadline_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Query.DefaultDeadlineMs = v
					}
				case "default_limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Query.DefaultLimit = v
					}
				}
			}
		}
	}

	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// parseSize handles size strings like "32MiB", "500KB", "1GB".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GIB"), strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(s, "GIB"), "GB")
	case strings.HasSuffix(s, "MIB"), strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(s, "MIB"), "MB")
	case strings.HasSuffix(s, "KIB"), strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(strings.TrimSuffix(s, "KIB"), "KB")
	case strings.HasSuffix(s, "B"):
		multiplier = 1
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}
