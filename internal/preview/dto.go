// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package preview

import "github.com/frameflow-dev/frameflow/internal/state"

// SessionStatus é a visão externa de uma sessão no preview API.
type SessionStatus struct {
	SessionID        string  `json:"session_id"`
	Status           string  `json:"status"`
	ProcessingType   string  `json:"processing_type,omitempty"`
	VideoName        string  `json:"video_name,omitempty"`
	TotalFrames      int     `json:"total_frames"`
	FramesProcessed  int     `json:"frames_processed"`
	ProgressPct      float64 `json:"progress_pct"`
	FPS              float64 `json:"fps,omitempty"`
	Resolution       string  `json:"resolution,omitempty"`
	CurrentFPS       float64 `json:"current_fps,omitempty"`
	ETASeconds       float64 `json:"eta_seconds,omitempty"`
	StartTime        string  `json:"start_time,omitempty"`
	TotalTimeSeconds float64 `json:"total_time_seconds,omitempty"`
}

// statusFromRecord monta o DTO a partir do state store. framesOnDisk é
// o fallback para o contador de progresso quando o campo ainda não foi
// publicado.
func statusFromRecord(rec state.Record, framesOnDisk int) SessionStatus {
	s := SessionStatus{
		SessionID:        rec.SessionID,
		Status:           rec.Status,
		ProcessingType:   rec.ProcessingType,
		VideoName:        rec.VideoName,
		TotalFrames:      rec.TotalFrames,
		FPS:              rec.FPS,
		Resolution:       rec.Resolution,
		CurrentFPS:       rec.CurrentFPS,
		ETASeconds:       rec.ETASeconds,
		StartTime:        rec.StartTime,
		TotalTimeSeconds: rec.TotalTimeSeconds,
	}
	if s.Status == "" {
		s.Status = state.StatusProcessing
	}

	if rec.HasProcessed {
		s.FramesProcessed = rec.FramesProcessed
	} else {
		s.FramesProcessed = framesOnDisk
	}

	if s.TotalFrames > 0 {
		s.ProgressPct = float64(s.FramesProcessed) / float64(s.TotalFrames) * 100
		if s.ProgressPct > 100 {
			s.ProgressPct = 100
		}
	}
	return s
}
