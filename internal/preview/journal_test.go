// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package preview

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJournal_RecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := NewJournal(path, 8, 100)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	j.Record("s1", "accepted", "video.mp4")
	j.Record("s1", "dispatching", "10 frames")
	j.Record("s2", "accepted", "other.mp4")

	events := j.Recent(0)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Event != "accepted" || events[0].SessionID != "s1" {
		t.Errorf("first event: %+v", events[0])
	}
	if events[2].SessionID != "s2" {
		t.Errorf("events out of order: %+v", events)
	}
	if events[0].Timestamp == "" {
		t.Error("timestamp not filled")
	}

	// Limit retorna os mais recentes
	last := j.Recent(1)
	if len(last) != 1 || last[0].SessionID != "s2" {
		t.Errorf("Recent(1): %+v", last)
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := NewJournal(path, 8, 100)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	j.Record("s1", "accepted", "")
	j.Record("s1", "completed", "")
	j.Close()

	j2, err := NewJournal(path, 8, 100)
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	defer j2.Close()

	events := j2.Recent(0)
	if len(events) != 2 {
		t.Fatalf("got %d events after reopen, want 2", len(events))
	}
	if events[1].Event != "completed" {
		t.Errorf("last event: %+v", events[1])
	}
}

func TestJournal_RingDiscardsOldest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := NewJournal(path, 3, 1000)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Record("s1", "progress", string(rune('a'+i)))
	}

	events := j.Recent(0)
	if len(events) != 3 {
		t.Fatalf("ring should cap at 3, got %d", len(events))
	}
	if events[0].Detail != "c" || events[2].Detail != "e" {
		t.Errorf("ring kept wrong window: %+v", events)
	}
}

func TestJournal_RotationCompressesOldGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := NewJournal(path, 4, 10)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	for i := 0; i < 12; i++ {
		j.Record("s1", "progress", "")
	}

	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Errorf("rotated generation missing: %v", err)
	}

	// O arquivo ativo ficou com no máximo maxLines/2 linhas
	entries, lines, err := loadJSONL(path)
	if err != nil {
		t.Fatalf("loadJSONL: %v", err)
	}
	if lines > 6 {
		t.Errorf("active file has %d lines after rotation", lines)
	}
	if len(entries) == 0 {
		t.Error("active file should keep recent entries")
	}
}
