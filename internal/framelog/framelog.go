// Package framelog persists per-frame fusion summaries to SQLite for
// post-demo analysis. Pixel data is never stored; one row per fused frame is
// enough to audit skew, overlay density, and output rate afterwards.
package framelog

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/newslab-data/fuseviz/internal/fusion"
)

//go:embed schema.sql
var schemaSQL string

// FrameLog is a handle to the fusion log database.
type FrameLog struct {
	*sql.DB
}

// Open creates or opens the fusion log at path and applies the schema.
func Open(path string) (*FrameLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open frame log %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize frame log schema: %w", err)
	}
	return &FrameLog{db}, nil
}

// Record inserts one fused frame's summary row.
func (fl *FrameLog) Record(frame *fusion.FusedFrame) error {
	const query = `
		INSERT INTO fused_frames (
			frame_id, reference_ns, anchor,
			point_count, out_of_view_count, detection_count,
			pointcloud_skew_ns, detection_skew_ns, image_skew_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := fl.Exec(query,
		frame.FrameID,
		frame.ReferenceNanos,
		frame.Anchor.String(),
		len(frame.Points),
		frame.OutOfViewCount,
		len(frame.Detections),
		int64(frame.PointCloudSkew),
		int64(frame.DetectionSkew),
		int64(frame.ImageSkew),
	)
	if err != nil {
		return fmt.Errorf("record frame %s: %w", frame.FrameID, err)
	}
	return nil
}

// Summary holds aggregate statistics over the logged frames.
type Summary struct {
	FrameCount       int64
	FirstReferenceNS int64
	LastReferenceNS  int64
	AvgPointCount    float64
	AvgOutOfView     float64
}

// Summarize aggregates the logged frames. Returns a zero Summary when the
// log is empty.
func (fl *FrameLog) Summarize() (Summary, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(MIN(reference_ns), 0),
			COALESCE(MAX(reference_ns), 0),
			COALESCE(AVG(point_count), 0),
			COALESCE(AVG(out_of_view_count), 0)
		FROM fused_frames
	`
	var s Summary
	err := fl.QueryRow(query).Scan(
		&s.FrameCount, &s.FirstReferenceNS, &s.LastReferenceNS,
		&s.AvgPointCount, &s.AvgOutOfView,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize frame log: %w", err)
	}
	return s, nil
}
