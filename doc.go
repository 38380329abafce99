// Package circulate provides a borrow/return reservation engine for shared
// pools of physical items.
//
// Circulate is designed as a library, not a service. Import it into your Go
// application, hand it a store and it enforces the lending rules:
//
//   - At most one active holder per item at any instant
//   - Eligibility by plan limits, risk tier, member level and subscription
//     validity, checked before every reservation
//   - Single-use handover tokens for the physical pickup
//   - Trust score, points and levels that react to how items come back
//   - A durable outbox so no return is ever lost by the progression engine
//   - Lifecycle hooks for audit, metrics and event streaming plugins
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/circulate"
//	    "github.com/xraph/circulate/store/postgres"
//	)
//
//	store := postgres.New(db)
//
//	e := circulate.New(store)
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Core Concepts
//
// Items carry a risk tier and a minimum member level:
//
//	drill := &item.Item{Name: "Cordless drill", RiskTier: item.RiskMedium, MinLevel: 2}
//	err := e.RegisterItem(ctx, drill)
//
// Subscriptions bind members to a plan tier. Members without one borrow
// under the basic plan:
//
//	sub, err := e.Subscribe(ctx, userID, plan.TierMaker, nil)
//
// Reservations grant exclusive hold of an item for a number of days:
//
//	r, err := e.Reserve(ctx, userID, drill.ID, 7)
//	switch {
//	case circulate.IsConflict(err):
//	    // someone else holds the item
//	case circulate.IsDenied(err):
//	    // plan, level or subscription refused it
//	}
//
// The borrower confirms pickup with the handover token, and the return
// concludes the reservation and updates the borrower's progression:
//
//	_, err = e.ConfirmHandover(ctx, r.HandoverToken)
//	res, err := e.Return(ctx, r.ID, circulate.ConditionGood, "")
//
// # Consistency
//
// Every store backend implements Reserve and ReturnReservation as a single
// atomic unit guarded by a uniqueness constraint on holding reservations, so
// concurrent requests for one item produce exactly one winner. Returns write
// an outbox event in the same unit; RelayPending and the background relay
// deliver it at least once, and the progression journal makes redelivery a
// no-op.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	item_01h2xcejqtf2nbrexx3vqjhp41  // Item ID
//	rsv_01h2xcejqtf2nbrexx3vqjhp41   // Reservation ID
//	hand_01h455vb4pex5vsknk084sn02q  // Handover token
package circulate
