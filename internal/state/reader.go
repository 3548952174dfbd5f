// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package state

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Reader lê o estado de sessões publicado no Redis. Usado pelo preview
// server; nunca escreve.
type Reader struct {
	client *redis.Client
}

// NewReader cria um Reader sobre um client Redis já configurado.
func NewReader(client *redis.Client) *Reader {
	return &Reader{client: client}
}

// Record agrupa os campos de uma sessão lidos do Redis. Campos ausentes
// ficam no zero value; Found indica se a sessão existe no state store.
type Record struct {
	SessionID        string
	Found            bool
	TotalFrames      int
	FPS              float64
	Resolution       string
	Status           string
	ProcessingType   string
	VideoName        string
	StartTime        string
	FramesProcessed  int
	HasProcessed     bool
	CurrentFPS       float64
	HasCurrentFPS    bool
	ETASeconds       float64
	HasETA           bool
	TotalTimeSeconds float64
	HasTotalTime     bool
}

// Sessions enumera as sessões presentes no state store via SCAN sobre
// session:*:total_frames. A ordem é indefinida; o caller ordena.
func (r *Reader) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, "session:*:total_frames", 100).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		if len(parts) == 3 {
			ids = append(ids, parts[1])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Session lê todos os campos de uma sessão. Campos individuais ausentes
// não são erro; apenas a ausência de total_frames marca Found=false.
func (r *Reader) Session(ctx context.Context, sessionID string) (Record, error) {
	rec := Record{SessionID: sessionID}

	get := func(field string) (string, bool, error) {
		val, err := r.client.Get(ctx, Key(sessionID, field)).Result()
		if err == redis.Nil {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	total, ok, err := get("total_frames")
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, nil
	}
	rec.Found = true
	rec.TotalFrames, _ = strconv.Atoi(total)

	if v, ok, err := get("fps"); err != nil {
		return rec, err
	} else if ok {
		rec.FPS, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok, err := get("resolution"); err != nil {
		return rec, err
	} else if ok {
		rec.Resolution = v
	}
	if v, ok, err := get("status"); err != nil {
		return rec, err
	} else if ok {
		rec.Status = v
	}
	if v, ok, err := get("processing_type"); err != nil {
		return rec, err
	} else if ok {
		rec.ProcessingType = v
	}
	if v, ok, err := get("video_name"); err != nil {
		return rec, err
	} else if ok {
		rec.VideoName = v
	}
	if v, ok, err := get("start_time"); err != nil {
		return rec, err
	} else if ok {
		rec.StartTime = v
	}
	if v, ok, err := get("frames_processed"); err != nil {
		return rec, err
	} else if ok {
		rec.FramesProcessed, _ = strconv.Atoi(v)
		rec.HasProcessed = true
	}
	if v, ok, err := get("current_fps"); err != nil {
		return rec, err
	} else if ok {
		rec.CurrentFPS, _ = strconv.ParseFloat(v, 64)
		rec.HasCurrentFPS = true
	}
	if v, ok, err := get("eta_seconds"); err != nil {
		return rec, err
	} else if ok {
		rec.ETASeconds, _ = strconv.ParseFloat(v, 64)
		rec.HasETA = true
	}
	if v, ok, err := get("total_time_seconds"); err != nil {
		return rec, err
	} else if ok {
		rec.TotalTimeSeconds, _ = strconv.ParseFloat(v, 64)
		rec.HasTotalTime = true
	}

	return rec, nil
}

// Ping verifica a conectividade com o Redis (usado pelo /healthz).
func (r *Reader) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
