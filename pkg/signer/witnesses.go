package signer

import (
	"context"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// processWitnessRequests answers exactly WitnessRequestsCount requests. The
// first request is pulled with the ack of the last body item, every later
// one with the previous witness.
func (s *Signer) processWitnessRequests(ctx context.Context, txHash []byte) ([]messages.WitnessResponse, error) {
	s.enter(PhaseWitnessRequests)
	witnesses := make([]messages.WitnessResponse, 0, s.init.WitnessRequestsCount)
	for range s.init.WitnessRequestsCount {
		req, err := receive[messages.WitnessRequest](ctx, s)
		if err != nil {
			return nil, err
		}
		if err := s.validateWitnessRequest(&req); err != nil {
			return nil, err
		}
		if err := s.policy.showWitnessRequest(ctx, s, req.Path); err != nil {
			return nil, err
		}
		w, err := s.witness(req.Path, txHash)
		if err != nil {
			return nil, err
		}
		s.log.Debugf("Session %s: %s witness for %s", s.id, w.Type, req.Path)
		witnesses = append(witnesses, w)
		s.pending = w
	}
	return witnesses, nil
}

func (s *Signer) validateWitnessRequest(req *messages.WitnessRequest) error {
	if len(req.Path) == 0 {
		return reject("Invalid witness request")
	}
	if err := s.accounts.AddWitnessRequest(req); err != nil {
		return err
	}
	return s.policy.validateWitnessRequest(s, req.Path)
}

// witness signs txHash with the key at path. Byron keys produce bootstrap
// witnesses, which carry the chain code needed to rebuild the address.
func (s *Signer) witness(path paths.Path, txHash []byte) (messages.WitnessResponse, error) {
	h, err := s.kc.Derive(path)
	if err != nil {
		return messages.WitnessResponse{}, rejectWith(ErrKeychain, "Invalid witness request", err)
	}
	defer h.Wipe()

	sig, err := h.Sign(txHash)
	if err != nil {
		return messages.WitnessResponse{}, rejectWith(ErrKeychain, "Cannot sign", err)
	}
	w := messages.WitnessResponse{
		Type:      messages.WitnessShelley,
		PubKey:    h.PublicKey(),
		Signature: sig,
	}
	if path.IsByron() {
		w.Type = messages.WitnessByron
		w.ChainCode = h.ChainCode()
	}
	return w, nil
}
