// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package worker

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// memSampler amostra o RSS do próprio processo para os sidecars de stats.
// Falhas de leitura degradam para zero; stats de memória são best-effort.
type memSampler struct {
	proc *process.Process
}

func newMemSampler() *memSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &memSampler{}
	}
	return &memSampler{proc: proc}
}

// RSSMB retorna o resident set corrente em MB, ou 0 quando indisponível.
func (m *memSampler) RSSMB() float64 {
	if m.proc == nil {
		return 0
	}
	info, err := m.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}
