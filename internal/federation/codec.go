// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package federation

import (
	"encoding/json"

	"github.com/sovereign-mohawk/fedlearn-core/internal/errs"
	"github.com/sovereign-mohawk/fedlearn-core/internal/store"
	"github.com/sovereign-mohawk/fedlearn-core/internal/types"
)

// encodeResult serializes an AggregationResult for use as a Proposal's
// content (spec §3 Proposal.content is opaque bytes).
func encodeResult(result types.AggregationResult) []byte {
	b, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return b
}

func encodeGlobalModel(model types.GlobalModel) ([]byte, error) {
	b, err := json.Marshal(model)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "federation.encodeGlobalModel", err)
	}
	return b, nil
}

func decodeGlobalModel(payload []byte) (types.GlobalModel, error) {
	var model types.GlobalModel
	if err := json.Unmarshal(payload, &model); err != nil {
		return types.GlobalModel{}, errs.New(errs.InvalidInput, "federation.decodeGlobalModel", err)
	}
	return model, nil
}

func encodeSnapshot(snap store.Snapshot) ([]byte, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "federation.encodeSnapshot", err)
	}
	return b, nil
}

func decodeSnapshot(data []byte) (store.Snapshot, error) {
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, errs.New(errs.InvalidInput, "federation.decodeSnapshot", err)
	}
	return snap, nil
}
