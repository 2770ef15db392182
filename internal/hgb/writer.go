// Package hgb writes the per-interval graph data sets in the HGB file
// layout the downstream loader consumes: one directory per surviving
// interval holding node.dat (vertices), link.dat (edges) and meta.json.
package hgb

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/JeffersonLab/ced2gnn/internal/filter"
	"github.com/JeffersonLab/ced2gnn/internal/mya"
	"github.com/JeffersonLab/ced2gnn/internal/node"
)

// DirFromDate names a default output directory from a timestamp.
func DirFromDate(base string, t time.Time) string {
	return path.Join(base, "graph-"+t.Format("2006-01-02_1504"))
}

// Writer emits data sets onto a billy filesystem rooted at the output
// directory (osfs in production, memfs in tests).
type Writer struct {
	fs  billy.Filesystem
	log *slog.Logger
}

func NewWriter(fs billy.Filesystem, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{fs: fs, log: log}
}

// CheckWritable probes the output root before any expensive fetch happens.
// Create makes missing parent directories, so this also materializes the
// output root itself.
func (w *Writer) CheckWritable() error {
	probe := ".write-probe"
	f, err := w.fs.Create(probe)
	if err != nil {
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	_ = f.Close()
	return w.fs.Remove(probe)
}

// meta is the per-interval meta.json payload.
type meta struct {
	Interval string `json:"interval"`
	Begin    string `json:"begin"`
	End      string `json:"end"`
	Width    string `json:"width"`
	Samples  int    `json:"samples"`
	Nodes    int    `json:"nodes"`
	Edges    int    `json:"edges"`
}

// WriteDataSets emits one output unit per interval that passes the
// predicate. Linking must already be populated; skipped intervals do not
// affect ids or edges of the others. An empty node list is a configuration
// error (typically a degenerate date range or inventory query) and aborts
// before anything is written.
//
// Returns the number of interval directories written.
func (w *Writer) WriteDataSets(list *node.List, global []mya.WindowData, pred *filter.Predicate) (int, error) {
	if list.Len() == 0 {
		return 0, fmt.Errorf("empty node list: did you provide valid dates?")
	}

	edges := list.Edges()
	written := 0
	for i, data := range global {
		pass, err := pred.PassWindow(data)
		if err != nil {
			return written, err
		}
		if !pass {
			w.log.Info("interval filtered out", "interval", data.Window.DirName())
			continue
		}
		if err := w.writeInterval(i, data.Window, list, edges); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func (w *Writer) writeInterval(idx int, win mya.Window, list *node.List, edges []node.Edge) error {
	dir := win.DirName()
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("interval %s: %w", dir, err)
	}

	var nodes strings.Builder
	for _, n := range list.Nodes() {
		attrs, err := json.Marshal(n.Attributes)
		if err != nil {
			return fmt.Errorf("interval %s node %d: %w", dir, n.ID, err)
		}
		fmt.Fprintf(&nodes, "%d\t%s\t%s\t%d\t%s\t%s\n",
			n.ID, n.Element.Name, n.Element.Type, int(n.Role),
			featureColumn(n, idx), attrs)
	}
	if err := w.writeFile(path.Join(dir, "node.dat"), nodes.String()); err != nil {
		return err
	}

	var links strings.Builder
	for _, e := range edges {
		fmt.Fprintf(&links, "%d\t%d\t0\t1.0\n", e.Source, e.Target)
	}
	if err := w.writeFile(path.Join(dir, "link.dat"), links.String()); err != nil {
		return err
	}

	m, err := json.MarshalIndent(meta{
		Interval: dir,
		Begin:    win.Begin.Format("2006-01-02 15:04:05"),
		End:      win.End.Format("2006-01-02 15:04:05"),
		Width:    mya.FormatInterval(win.Interval),
		Samples:  win.Samples(),
		Nodes:    list.Len(),
		Edges:    len(edges),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := w.writeFile(path.Join(dir, "meta.json"), string(m)+"\n"); err != nil {
		return err
	}

	w.log.Info("wrote interval", "interval", dir, "nodes", list.Len(), "edges", len(edges))
	return nil
}

// featureColumn joins the node's sampled values for one interval: rows in
// archive order, the node's channels in declaration order within each row.
func featureColumn(n *node.Node, windowIdx int) string {
	if windowIdx >= len(n.Samples) {
		return ""
	}
	var vals []string
	for _, row := range n.Samples[windowIdx] {
		for _, ch := range n.Channels {
			v, ok := row.Value(ch)
			if !ok {
				v = ""
			}
			vals = append(vals, v)
		}
	}
	return strings.Join(vals, ",")
}

// WriteWarnings records the recoverable skips in warnings.log at the output
// root, fresh each run.
func (w *Writer) WriteWarnings(skips []node.Skip) error {
	var b strings.Builder
	for _, s := range skips {
		fmt.Fprintf(&b, "%s (%s): %s\n", s.Element.Name, s.Element.Type, s.Reason)
	}
	return w.writeFile("warnings.log", b.String())
}

// CopyConfig drops the run's config file at the output root so the data set
// is self-describing.
func (w *Writer) CopyConfig(raw []byte) error {
	return util.WriteFile(w.fs, "config.yaml", raw, 0o644)
}

func (w *Writer) writeFile(name, content string) error {
	if err := util.WriteFile(w.fs, name, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
