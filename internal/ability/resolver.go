package ability

import (
	"time"

	"github.com/blockfall/blockfall-server-go/internal/catalog"
	"go.uber.org/zap"
)

// Resolver validates and resolves ability casts end to end: catalog
// and targeting checks, loadout membership, cost with overcharge
// discount, clone substitution, defensive interception, and the
// resolver-side ability kinds (defense, economy, purge). Rooms
// serialize casts, so resolution never races itself.
type Resolver struct {
	logger  *zap.Logger
	cat     *catalog.Catalog
	roster  *Roster
	defense *Tracker
}

// NewResolver creates a resolver over one room's roster and tracker.
func NewResolver(cat *catalog.Catalog, roster *Roster, defense *Tracker, logger *zap.Logger) *Resolver {
	return &Resolver{
		logger:  logger,
		cat:     cat,
		roster:  roster,
		defense: defense,
	}
}

// Roster returns the roster the resolver resolves against.
func (r *Resolver) Roster() *Roster {
	return r.roster
}

// Defense returns the defensive tracker the resolver consults.
func (r *Resolver) Defense() *Tracker {
	return r.defense
}

// Resolve runs one cast through the full pipeline. Validation failures
// are terminal with no mutation; once the cost is charged the cast is
// resolved even when a defense intercepts it, so a blocked cast still
// costs the caster.
func (r *Resolver) Resolve(req Request, now time.Time) Result {
	res := Result{
		RequestID:       req.RequestID,
		CasterID:        req.CasterID,
		Requested:       req.Ability,
		Applied:         req.Ability,
		RequestedTarget: req.TargetID,
		FinalTarget:     req.TargetID,
	}
	// Rejections that fire before validation reaches the account must
	// still report the caster's real balance, not a zero.
	if account, ok := r.roster.Account(req.CasterID); ok {
		res.RemainingStars = account.Stars()
	}

	ability, ok := r.cat.Get(req.Ability)
	if !ok {
		return r.reject(res, ReasonUnknownAbility)
	}

	target := req.TargetID
	if target == "" && ability.Target == catalog.TargetSelf {
		target = req.CasterID
	}
	res.FinalTarget = target

	switch ability.Target {
	case catalog.TargetSelf:
		if target != req.CasterID {
			return r.reject(res, ReasonInvalidTarget)
		}
	case catalog.TargetOpponent:
		if target == "" || target == req.CasterID {
			return r.reject(res, ReasonInvalidTarget)
		}
	}

	if !r.roster.Has(req.CasterID) {
		return r.reject(res, ReasonSourcePlayerMissing)
	}
	account, ok := r.roster.Account(req.CasterID)
	if !ok {
		return r.reject(res, ReasonSourceStateMissing)
	}
	res.RemainingStars = account.Stars()

	if !r.roster.Allowed(req.CasterID, ability.ID) {
		return r.reject(res, ReasonAbilityNotInLoadout)
	}
	if !r.roster.Has(target) {
		return r.reject(res, ReasonTargetPlayerMissing)
	}
	if _, ok := r.roster.Account(target); !ok {
		return r.reject(res, ReasonTargetStateMissing)
	}

	cost, discounted := r.effectiveCost(req.CasterID, ability)
	remaining, paid := account.SpendStars(cost)
	res.RemainingStars = remaining
	if !paid {
		return r.reject(res, ReasonInsufficientStars)
	}
	res.ChargedCost = cost

	chargeSpent := false
	if discounted {
		chargeSpent = r.roster.ConsumeOverchargeCharge(req.CasterID)
	}

	applied := ability
	if ability.Kind == catalog.KindClone {
		copied, ok := r.cloneSource(target)
		if !ok {
			account.GrantStars(cost)
			if chargeSpent {
				r.roster.RestoreOverchargeCharge(req.CasterID)
			}
			res.ChargedCost = 0
			res.RemainingStars = account.Stars()
			res.Reason = ReasonCloneNoAbility
			if r.logger != nil {
				r.logger.Info("clone found nothing to copy",
					zap.String("caster_id", req.CasterID),
					zap.String("target_id", target),
				)
			}
			return res
		}
		applied = copied
		res.Applied = copied.ID
		if copied.Target == catalog.TargetSelf {
			target = req.CasterID
			res.FinalTarget = target
		}
	}

	// A blocked cast was still cast, so clone memory records it either
	// way.
	if applied.Kind != catalog.KindClone {
		r.roster.SetLastNonClone(req.CasterID, applied.ID)
	}

	if applied.Category == catalog.CategoryDebuff {
		if r.defense.Consume(target, catalog.AbilityReflect, now) {
			originalTarget := target
			target = req.CasterID
			res.FinalTarget = target
			res.InterceptedBy = catalog.AbilityReflect
			res.Reason = ReasonReflectedByOpponent
			res.Deliveries = []Delivery{{
				TargetID: target,
				FromID:   originalTarget,
				Ability:  applied.ID,
			}}
			r.logResolved(req.CasterID, applied.ID, target, cost, res)
			return res
		}
		if r.defense.Consume(target, catalog.AbilityShield, now) {
			res.InterceptedBy = catalog.AbilityShield
			res.Reason = ReasonBlockedByShield
			res.Blocked = &BlockedNotice{
				OwnerID:   target,
				Ability:   applied.ID,
				FromID:    req.CasterID,
				BlockedBy: catalog.AbilityShield,
			}
			r.logResolved(req.CasterID, applied.ID, target, cost, res)
			return res
		}
	}

	res.Accepted = true
	switch applied.Kind {
	case catalog.KindDefense:
		r.defense.Arm(req.CasterID, applied.ID, now.Add(applied.Duration))
	case catalog.KindEconomy:
		r.roster.SetOvercharge(req.CasterID, applied.Param("charges", 3))
	case catalog.KindPurge:
		// Purge is bilateral: both boards shed their timed effects.
		res.Deliveries = append(res.Deliveries, Delivery{
			TargetID: target,
			FromID:   req.CasterID,
			Ability:  applied.ID,
		})
		if opp, ok := r.roster.Opponent(target); ok {
			res.Deliveries = append(res.Deliveries, Delivery{
				TargetID: opp,
				FromID:   req.CasterID,
				Ability:  applied.ID,
			})
		}
	default:
		res.Deliveries = append(res.Deliveries, Delivery{
			TargetID: target,
			FromID:   req.CasterID,
			Ability:  applied.ID,
		})
	}

	r.logResolved(req.CasterID, applied.ID, target, cost, res)
	return res
}

// effectiveCost applies the caster's overcharge discount. The discount
// never applies to overcharge itself.
func (r *Resolver) effectiveCost(casterID string, a catalog.Ability) (int, bool) {
	if a.Kind == catalog.KindEconomy || r.roster.OverchargeCharges(casterID) == 0 {
		return a.Cost, false
	}
	discount := 50
	if oc, ok := r.cat.Get(catalog.AbilityOvercharge); ok {
		discount = oc.Param("discount", discount)
	}
	return a.Cost * (100 - discount) / 100, true
}

// cloneSource looks up the resolved target's copyable ability.
func (r *Resolver) cloneSource(targetID string) (catalog.Ability, bool) {
	id, ok := r.roster.LastNonClone(targetID)
	if !ok {
		return catalog.Ability{}, false
	}
	return r.cat.Get(id)
}

func (r *Resolver) reject(res Result, reason Reason) Result {
	res.Reason = reason
	if r.logger != nil {
		r.logger.Info("ability rejected",
			zap.String("caster_id", res.CasterID),
			zap.String("ability", string(res.Requested)),
			zap.String("reason", string(reason)),
		)
	}
	return res
}

func (r *Resolver) logResolved(casterID string, applied catalog.AbilityID, target string, cost int, res Result) {
	if r.logger == nil {
		return
	}
	r.logger.Info("ability resolved",
		zap.String("caster_id", casterID),
		zap.String("ability", string(applied)),
		zap.String("target_id", target),
		zap.Int("cost", cost),
		zap.Int("stars_remaining", res.RemainingStars),
		zap.String("intercepted_by", string(res.InterceptedBy)),
	)
}
