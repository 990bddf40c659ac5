package game

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"southbag/internal/ledger"
	"southbag/internal/money"

	"github.com/shopspring/decimal"
)

var (
	PlanningFee    = money.MustParse("0.05")
	EquipmentFee   = money.MustParse("0.03")
	vaultSpan      = money.MustParse("4.50")
	vaultFloor     = money.MustParse("0.50")
	deductibleRate = money.MustParse("0.25")
	heistFineSpan  = money.MustParse("0.25")
	heistFineFloor = money.MustParse("0.05")
)

func recruiting(ctx context.Context, tx ledger.Tx, channel string) (ledger.Heist, error) {
	heists, err := tx.ListHeists(ctx, channel, ledger.HeistRecruiting)
	if err != nil {
		return ledger.Heist{}, err
	}
	if len(heists) == 0 {
		return ledger.Heist{}, ErrNoHeist
	}
	return heists[0], nil
}

// ActiveHeist returns the channel's recruiting heist.
func (s *Service) ActiveHeist(ctx context.Context, channel string) (ledger.Heist, error) {
	var out ledger.Heist
	err := s.run(ctx, []string{heistKey(channel)}, func(tx ledger.Tx, _ time.Time) error {
		h, err := recruiting(ctx, tx, channel)
		out = h
		return err
	})
	return out, err
}

// StartHeist opens recruiting in channel with the organizer as the first
// member.
func (s *Service) StartHeist(ctx context.Context, channel, organizer string) (HeistResult, error) {
	var out HeistResult
	err := s.run(ctx, []string{heistKey(channel), organizer}, func(tx ledger.Tx, now time.Time) error {
		j := newJournal(tx, now)
		if _, err := j.usable(ctx, organizer); err != nil {
			return err
		}
		if _, err := recruiting(ctx, tx, channel); err == nil {
			return ErrHeistActive
		} else if !errors.Is(err, ErrNoHeist) {
			return err
		}

		bal := j.post(organizer, ledger.KindFee, PlanningFee.Neg(), "Heist planning fee")
		h, err := tx.InsertHeist(ctx, ledger.Heist{
			ChannelID:    channel,
			OrganizerID:  organizer,
			Participants: []string{organizer},
			Status:       ledger.HeistRecruiting,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		out = HeistResult{Heist: h, Fee: PlanningFee, Balance: bal}
		return j.commit(ctx)
	})
	return out, err
}

func (s *Service) JoinHeist(ctx context.Context, channel, owner string) (HeistResult, error) {
	var out HeistResult
	err := s.run(ctx, []string{heistKey(channel), owner}, func(tx ledger.Tx, now time.Time) error {
		h, err := recruiting(ctx, tx, channel)
		if err != nil {
			return err
		}
		j := newJournal(tx, now)
		if _, err := j.mustAccount(ctx, owner); err != nil {
			return err
		}
		if h.HasParticipant(owner) {
			return ErrAlreadyJoined
		}
		if len(h.Participants) >= MaxHeistCrew {
			return ErrHeistFull
		}

		bal := j.post(owner, ledger.KindFee, EquipmentFee.Neg(), "Heist equipment fee")
		crew := append(append([]string(nil), h.Participants...), owner)
		if err := tx.PatchHeist(ctx, h.ID, ledger.HeistPatch{Participants: crew}); err != nil {
			return err
		}
		h.Participants = crew
		out = HeistResult{Heist: h, Fee: EquipmentFee, Balance: bal}
		return j.commit(ctx)
	})
	return out, err
}

// ExecuteHeist resolves the channel's recruiting heist. Only the organizer
// may pull the trigger.
func (s *Service) ExecuteHeist(ctx context.Context, channel, owner string) (HeistOutcome, error) {
	var out HeistOutcome
	crew, err := s.heistCrew(ctx, channel, owner)
	if err != nil {
		return out, err
	}
	// Members are locked only once the crew is known. A join that slips in
	// between is caught by the comparison below and the lookup starts over.
	for settled := false; !settled; {
		keys := append([]string{heistKey(channel)}, crew...)
		err = s.run(ctx, keys, func(tx ledger.Tx, now time.Time) error {
			h, err := recruiting(ctx, tx, channel)
			if err != nil {
				return err
			}
			if err := checkExecutable(h, owner); err != nil {
				return err
			}
			if !slices.Equal(h.Participants, crew) {
				crew = h.Participants
				return nil
			}
			settled = true
			out, err = s.resolveHeist(ctx, tx, now, h)
			return err
		})
		if err != nil {
			return out, err
		}
	}
	s.log.Info("heist executed", "channel", channel, "crew", len(crew), "success", out.Success)
	return out, nil
}

func (s *Service) heistCrew(ctx context.Context, channel, owner string) ([]string, error) {
	var crew []string
	err := s.run(ctx, []string{heistKey(channel)}, func(tx ledger.Tx, _ time.Time) error {
		h, err := recruiting(ctx, tx, channel)
		if err != nil {
			return err
		}
		if err := checkExecutable(h, owner); err != nil {
			return err
		}
		crew = h.Participants
		return nil
	})
	return crew, err
}

func checkExecutable(h ledger.Heist, owner string) error {
	if h.OrganizerID != owner {
		return ErrNotStarter
	}
	if len(h.Participants) < MinHeistCrew {
		return ErrNeedMoreParticipants
	}
	return nil
}

// resolveHeist draws the outcome and books every member's payout or fine
// together with the status change. Members whose account has since
// disappeared are skipped.
func (s *Service) resolveHeist(ctx context.Context, tx ledger.Tx, now time.Time, h ledger.Heist) (HeistOutcome, error) {
	chance := HeistChance(len(h.Participants))
	out := HeistOutcome{Chance: chance}
	out.Success = decimal.NewFromFloat(s.nextFloat()).LessThan(chance)

	j := newJournal(tx, now)
	status := ledger.HeistFailed
	var desc string
	if out.Success {
		status = ledger.HeistCompleted
		out.Vault = money.Cents(money.Uniform(s.nextFloat(), vaultSpan, vaultFloor))
		out.Deductible = money.Cents(out.Vault.Mul(deductibleRate))
		out.NetPayout = out.Vault.Sub(out.Deductible)
		out.Share = money.Cents(out.NetPayout.Div(decimal.NewFromInt(int64(len(h.Participants)))))
		desc = fmt.Sprintf("Heist payout (your share of %s)", money.Format(out.NetPayout))
	}
	for _, member := range h.Participants {
		if _, err := j.mustAccount(ctx, member); err != nil {
			if errors.Is(err, ErrNoAccount) {
				continue
			}
			return out, err
		}
		if out.Success {
			bal := j.post(member, ledger.KindDeposit, out.Share, desc)
			out.Shares = append(out.Shares, HeistShare{OwnerID: member, Amount: out.Share, Balance: bal})
			continue
		}
		fine := money.Cents(money.Uniform(s.nextFloat(), heistFineSpan, heistFineFloor))
		bal := j.post(member, ledger.KindFee, fine.Neg(), "Heist failure fine")
		out.Shares = append(out.Shares, HeistShare{OwnerID: member, Amount: fine.Neg(), Balance: bal})
	}

	if err := tx.PatchHeist(ctx, h.ID, ledger.HeistPatch{Status: &status, CompletedAt: &now}); err != nil {
		return out, err
	}
	h.Status = status
	h.CompletedAt = now
	out.Heist = h
	return out, j.commit(ctx)
}
