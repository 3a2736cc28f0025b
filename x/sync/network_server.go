// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/vmsync/message"
	"github.com/ava-labs/vmsync/utils/logging"
	"github.com/ava-labs/vmsync/x/merkledb"
)

var ErrMinProofSizeIsTooLarge = errors.New("cannot generate any proof within the requested limit")

// NetworkServer answers proof requests from peers using [db].
type NetworkServer struct {
	db  DB
	log logging.Logger
}

func NewNetworkServer(db DB, log logging.Logger) *NetworkServer {
	return &NetworkServer{
		db:  db,
		log: log,
	}
}

// HandleRangeProofRequest returns a range proof of at most the requested
// number of keys whose encoding is at most the requested number of bytes.
// Zero or too large limits are replaced with the message defaults.
func (s *NetworkServer) HandleRangeProofRequest(
	ctx context.Context,
	req *message.RangeProofRequest,
) (*message.RangeProofResponse, error) {
	if err := req.Verify(); err != nil {
		s.log.Debug("dropping invalid range proof request",
			zap.Stringer("root", req.RootHash),
			zap.Error(err),
		)
		return nil, err
	}

	proof, err := s.getRangeProof(ctx, req)
	if err != nil {
		return nil, err
	}
	return &message.RangeProofResponse{
		Proof: proof,
	}, nil
}

func (s *NetworkServer) getRangeProof(ctx context.Context, req *message.RangeProofRequest) (*merkledb.RangeProof, error) {
	keyLimit := req.EffectiveKeyLimit()
	bytesLimit := req.EffectiveBytesLimit()

	// attempt to get a proof within the bytes limit
	for keyLimit > 0 {
		proof, err := s.db.GetRangeProofAtRoot(ctx, req.RootHash, req.StartKey, req.EndKey, keyLimit)
		if err != nil {
			return nil, err
		}
		if proof.Size() <= bytesLimit {
			return proof, nil
		}
		// the proof size was too large, try to shrink it
		keyLimit = len(proof.KeyChanges) / 2
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrMinProofSizeIsTooLarge, bytesLimit)
}

// HandleChangeProofRequest returns a change proof with the same limits as
// HandleRangeProofRequest. If [db] doesn't have the history to prove the
// changes, a range proof of the requested range at the end root is returned
// instead.
func (s *NetworkServer) HandleChangeProofRequest(
	ctx context.Context,
	req *message.ChangeProofRequest,
) (*message.ChangeProofResponse, error) {
	if err := req.Verify(); err != nil {
		s.log.Debug("dropping invalid change proof request",
			zap.Stringer("startRoot", req.StartRootHash),
			zap.Stringer("endRoot", req.EndRootHash),
			zap.Error(err),
		)
		return nil, err
	}

	keyLimit := req.EffectiveKeyLimit()
	bytesLimit := req.EffectiveBytesLimit()
	for keyLimit > 0 {
		proof, err := s.db.GetChangeProof(ctx, req.StartRootHash, req.EndRootHash, req.StartKey, req.EndKey, keyLimit)
		if errors.Is(err, merkledb.ErrInsufficientHistory) {
			s.log.Debug("serving range proof in place of change proof",
				zap.Stringer("startRoot", req.StartRootHash),
				zap.Stringer("endRoot", req.EndRootHash),
				zap.Error(err),
			)
			rangeProof, err := s.getRangeProof(ctx, &message.RangeProofRequest{
				RootHash:   req.EndRootHash,
				StartKey:   req.StartKey,
				EndKey:     req.EndKey,
				KeyLimit:   req.KeyLimit,
				BytesLimit: req.BytesLimit,
			})
			if err != nil {
				return nil, err
			}
			return &message.ChangeProofResponse{
				RangeProof: rangeProof,
			}, nil
		}
		if err != nil {
			return nil, err
		}
		if proof.Size() <= bytesLimit {
			return &message.ChangeProofResponse{
				ChangeProof: proof,
			}, nil
		}
		// the proof size was too large, try to shrink it
		keyLimit = len(proof.KeyChanges) / 2
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrMinProofSizeIsTooLarge, bytesLimit)
}
