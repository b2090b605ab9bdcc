// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package service

import (
	"context"
	"fmt"

	"github.com/mahanfr/GnosisDB/internal/queue"
	"github.com/mahanfr/GnosisDB/internal/storage"
)

// HandleJob runs a queued job and records its result on the job. It
// implements worker.Handler.
func (s *Service) HandleJob(ctx context.Context, job *queue.Job) error {
	switch job.Operation {
	case queue.OpGenKeyPair:
		k, err := s.GenKeyPair(ctx, job.Principal)
		if err != nil {
			return err
		}
		job.ResultHandle = string(k.Handle)

	case queue.OpEncrypt:
		ct, err := s.Encrypt(ctx, storage.Handle(job.KeyHandle), job.Payload)
		if err != nil {
			return err
		}
		job.ResultHandle, job.Hops = string(ct.Handle), ct.Hops

	case queue.OpGenReKey:
		k, err := s.GenReKey(ctx, job.Principal, storage.Handle(job.KeyHandle))
		if err != nil {
			return err
		}
		job.ResultHandle = string(k.Handle)

	case queue.OpReEncrypt:
		ct, err := s.ReEncrypt(ctx, storage.Handle(job.InputHandle), storage.Handle(job.KeyHandle))
		if err != nil {
			return err
		}
		job.ResultHandle, job.Hops = string(ct.Handle), ct.Hops

	case queue.OpDecrypt:
		d, err := s.Decrypt(ctx, job.Principal, storage.Handle(job.InputHandle))
		if err != nil {
			return err
		}
		job.Result, job.Hops = d.Data, d.Hops

	default:
		return fmt.Errorf("%w: unsupported operation %q", ErrInvalidRequest, job.Operation)
	}
	return nil
}
