package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"blobvault/pkg/blob"
	"blobvault/pkg/nodestore"
)

type levelStats struct {
	nodes    uint64
	children uint64
	bytes    uint64
}

// PrintTree 打印 blob 的树形结构：每层节点数、子节点数与叶子字节数
func PrintTree(ctx context.Context, b *blob.Blob, w io.Writer) error {
	depth := b.Depth()
	levels := make([]levelStats, int(depth)+1)

	err := b.Walk(ctx, func(n nodestore.Node) error {
		s := &levels[n.Depth()]
		s.nodes++
		switch node := n.(type) {
		case *nodestore.Leaf:
			s.bytes += uint64(node.Size())
		case *nodestore.Inner:
			s.children += uint64(node.NumChildren())
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Root:       %s\n", b.Key())
	fmt.Fprintf(w, "Depth:      %d\n", depth)
	fmt.Fprintf(w, "Leaf bytes: %d (max %d per leaf)\n\n", levels[0].bytes, b.MaxBytesPerLeaf())

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "DEPTH\tKIND\tNODES\tCHILDREN\tBYTES\n")
	for d := int(depth); d >= 0; d-- {
		s := levels[d]
		kind, size := nodestore.KindInner, "-"
		if d == 0 {
			kind, size = nodestore.KindLeaf, fmtSize(s.bytes)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", d, kind, s.nodes, fmtCount(s.children), size)
	}
	return tw.Flush()
}

func fmtCount(n uint64) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

// FormatSize 人类可读的大小
func FormatSize(s uint64) string { return fmtSize(s) }

func fmtSize(s uint64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	} else if s < 1024*1024*1024 {
		return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
	}
	return fmt.Sprintf("%.2fGB", float64(s)/1024/1024/1024)
}
