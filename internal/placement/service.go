// Package placement orchestrates scan-driven placement: it resolves codes,
// runs the allocator, checks the result against the placement log and fans
// out events and push notifications.
package placement

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"cargo-placement-backend/config"
	"cargo-placement-backend/internal/apperr"
	"cargo-placement-backend/internal/events"
	"cargo-placement-backend/internal/ident"
	"cargo-placement-backend/internal/model"
	"cargo-placement-backend/internal/scope"
	"cargo-placement-backend/internal/store"
)

// Notifier is told when a cargo becomes fully placed.
type Notifier interface {
	NotifyFullyPlaced(cargo model.Cargo)
}

// Caller is the operator behind a request together with its computed scope.
type Caller struct {
	Operator scope.Operator
	Scope    scope.Scope
}

// PlaceCommand places one unit. The unit is given either as a scanned code or a
// plain number; the cell as a scanned code or an explicit address.
type PlaceCommand struct {
	UnitCode      string
	CellCode      string
	Cell          *model.CellAddress
	WarehouseHint *int64
	SessionID     string
}

// PlaceOutcome is a committed placement plus any divergence the follow-up audit found.
type PlaceOutcome struct {
	store.PlaceResult
	Discrepancies []store.Discrepancy
}

// Service is the placement application service.
type Service struct {
	store    store.Store
	resolver *Resolver
	events   events.Publisher
	notifier Notifier
	log      logrus.FieldLogger
}

// NewService wires the service. notifier may be nil when push is disabled.
func NewService(s store.Store, pub events.Publisher, notifier Notifier, codes config.CodesConfig, log logrus.FieldLogger) *Service {
	return &Service{
		store:    s,
		resolver: NewResolver(s, codes.UnitCodeMaxAge),
		events:   pub,
		notifier: notifier,
		log:      log,
	}
}

// Resolver exposes the code resolver for scan endpoints.
func (svc *Service) Resolver() *Resolver {
	return svc.resolver
}

// Place resolves the unit and the cell, then commits the placement.
func (svc *Service) Place(ctx context.Context, caller Caller, cmd PlaceCommand) (PlaceOutcome, error) {
	if strings.TrimSpace(cmd.SessionID) == "" {
		// the record carries it back so the client can undo
		cmd.SessionID = ident.NewSessionID()
	}
	log := svc.log.WithFields(logrus.Fields{
		"operator": caller.Operator.ID,
		"session":  cmd.SessionID,
	})
	// Scope first so a foreign warehouse reads as Forbidden; bounds are checked by
	// the allocator after the unit, so an unknown unit is NotFound either way.
	addr, err := svc.cellOf(ctx, caller.Scope, cmd)
	if err == nil {
		err = caller.Scope.RequireWrite(addr.WarehouseID)
	}
	if err != nil {
		svc.reportFailure(ctx, log, err)
		return PlaceOutcome{}, err
	}
	unitNumber, err := svc.unitNumberOf(ctx, caller.Scope, cmd.UnitCode)
	if err != nil {
		svc.reportFailure(ctx, log, err)
		return PlaceOutcome{}, err
	}
	log = log.WithFields(logrus.Fields{"unit": unitNumber, "cell": addr.String()})

	res, err := svc.store.Place(ctx, store.PlaceRequest{
		Operator:   caller.Operator,
		Scope:      caller.Scope,
		UnitNumber: unitNumber,
		Cell:       addr,
		SessionID:  cmd.SessionID,
	})
	if err != nil {
		svc.reportFailure(ctx, log, err)
		return PlaceOutcome{}, err
	}
	log = log.WithField("cargo", res.Cargo.ID)
	log.Info("unit placed")

	e := events.New(events.PlacementPlaced, res.Cargo.ID)
	e.DisplayNumber = res.Cargo.DisplayNumber
	e.UnitNumber = res.Unit.Number
	e.Cell = &addr
	e.OperatorID = caller.Operator.ID
	e.SessionID = cmd.SessionID
	e.State = res.Cargo.PlacementState
	svc.publish(ctx, log, e)

	if res.Cargo.PlacementState == model.StateFullyPlaced && res.PreviousState != model.StateFullyPlaced {
		svc.cargoFullyPlaced(ctx, log, res.Cargo)
	}

	outcome := PlaceOutcome{PlaceResult: res}
	outcome.Discrepancies = svc.checkUnit(ctx, log, res.Cargo.ID, res.Unit.Number)
	return outcome, nil
}

// Unplace reverses a unit's placement.
func (svc *Service) Unplace(ctx context.Context, caller Caller, unitCode string) (store.UnplaceResult, error) {
	unitNumber, err := svc.unitNumberOf(ctx, caller.Scope, unitCode)
	if err != nil {
		return store.UnplaceResult{}, err
	}
	return svc.unplace(ctx, caller, unitNumber, "")
}

// UndoLast reverses the most recent placement of a session that is still active.
func (svc *Service) UndoLast(ctx context.Context, caller Caller, sessionID string) (store.UnplaceResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return store.UnplaceResult{}, apperr.InvalidArgument("session id is required")
	}
	last, err := svc.store.LastActiveInSession(ctx, caller.Scope, sessionID)
	if err != nil {
		return store.UnplaceResult{}, err
	}
	return svc.unplace(ctx, caller, last.UnitNumber, sessionID)
}

func (svc *Service) unplace(ctx context.Context, caller Caller, unitNumber, sessionID string) (store.UnplaceResult, error) {
	log := svc.log.WithFields(logrus.Fields{
		"operator": caller.Operator.ID,
		"unit":     unitNumber,
	})
	if sessionID != "" {
		log = log.WithField("session", sessionID)
	}

	res, err := svc.store.Unplace(ctx, store.UnplaceRequest{
		Operator:   caller.Operator,
		Scope:      caller.Scope,
		UnitNumber: unitNumber,
	})
	if err != nil {
		svc.reportFailure(ctx, log, err)
		return store.UnplaceResult{}, err
	}
	addr := res.Record.Address()
	log.WithFields(logrus.Fields{"cargo": res.Cargo.ID, "cell": addr.String()}).Info("unit placement reverted")

	e := events.New(events.PlacementReverted, res.Cargo.ID)
	e.DisplayNumber = res.Cargo.DisplayNumber
	e.UnitNumber = unitNumber
	e.Cell = &addr
	e.OperatorID = caller.Operator.ID
	e.SessionID = res.Record.SessionID
	e.State = res.Cargo.PlacementState
	svc.publish(ctx, log, e)
	return res, nil
}

// Audit runs the consistency check for one cargo and raises an alarm on findings.
func (svc *Service) Audit(ctx context.Context, caller Caller, cargoID string) ([]store.Discrepancy, error) {
	found, err := svc.store.Audit(ctx, caller.Scope, cargoID)
	if err != nil {
		return nil, err
	}
	svc.alarm(ctx, svc.log.WithField("operator", caller.Operator.ID), cargoID, found)
	return found, nil
}

// AuditAll audits every cargo in scope; one alarm is raised per affected cargo.
func (svc *Service) AuditAll(ctx context.Context, caller Caller) ([]store.Discrepancy, error) {
	found, err := svc.store.AuditAll(ctx, caller.Scope)
	if err != nil {
		return nil, err
	}
	byCargo := make(map[string][]store.Discrepancy)
	var order []string
	for _, d := range found {
		if _, seen := byCargo[d.CargoID]; !seen {
			order = append(order, d.CargoID)
		}
		byCargo[d.CargoID] = append(byCargo[d.CargoID], d)
	}
	log := svc.log.WithField("operator", caller.Operator.ID)
	for _, id := range order {
		svc.alarm(ctx, log, id, byCargo[id])
	}
	return found, nil
}

func (svc *Service) unitNumberOf(ctx context.Context, sc scope.Scope, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", apperr.InvalidArgument("unit code is required")
	}
	res, err := svc.resolver.Resolve(ctx, sc, code, nil)
	if err != nil {
		return "", err
	}
	if !res.IsUnit() {
		return "", apperr.InvalidArgument("expected a unit code, got a %s code", res.Kind)
	}
	return res.Unit.Number, nil
}

func (svc *Service) cellOf(ctx context.Context, sc scope.Scope, cmd PlaceCommand) (model.CellAddress, error) {
	switch {
	case cmd.Cell != nil && cmd.CellCode != "":
		return model.CellAddress{}, apperr.InvalidArgument("give either a cell code or a cell address, not both")
	case cmd.Cell != nil:
		return *cmd.Cell, nil
	case strings.TrimSpace(cmd.CellCode) == "":
		return model.CellAddress{}, apperr.InvalidArgument("cell code is required")
	}

	return svc.resolver.Address(ctx, sc, cmd.CellCode, cmd.WarehouseHint)
}

// checkUnit is the post-commit synchronizer pass for the unit just placed.
func (svc *Service) checkUnit(ctx context.Context, log logrus.FieldLogger, cargoID, unitNumber string) []store.Discrepancy {
	found, err := svc.store.Audit(ctx, scope.All(), cargoID)
	if err != nil {
		log.WithError(err).Warn("post-placement audit failed")
		return nil
	}
	var mine []store.Discrepancy
	for _, d := range found {
		if d.UnitNumber == unitNumber || d.UnitNumber == "" {
			mine = append(mine, d)
		}
	}
	svc.alarm(ctx, log, cargoID, mine)
	return mine
}

func (svc *Service) cargoFullyPlaced(ctx context.Context, log logrus.FieldLogger, cargo model.Cargo) {
	log.Info("cargo fully placed")
	e := events.New(events.CargoFullyPlaced, cargo.ID)
	e.DisplayNumber = cargo.DisplayNumber
	e.State = cargo.PlacementState
	svc.publish(ctx, log, e)
	if svc.notifier != nil {
		svc.notifier.NotifyFullyPlaced(cargo)
	}
}

// reportFailure raises an alarm for integrity failures; other kinds are the caller's business.
func (svc *Service) reportFailure(ctx context.Context, log logrus.FieldLogger, err error) {
	if !errors.Is(err, apperr.ErrIntegrity) {
		log.WithError(err).WithField("kind", apperr.KindName(err)).Debug("placement rejected")
		return
	}
	log.WithError(err).Error("integrity violation; manual reconciliation required")
	e := events.New(events.IntegrityAlarm, "")
	e.Message = err.Error()
	if unit, ok := apperr.DetailsOf(err)["unit_number"].(string); ok {
		e.UnitNumber = unit
	}
	svc.publish(ctx, log, e)
}

func (svc *Service) alarm(ctx context.Context, log logrus.FieldLogger, cargoID string, found []store.Discrepancy) {
	if len(found) == 0 {
		return
	}
	for _, d := range found {
		log.WithFields(logrus.Fields{
			"cargo": d.CargoID,
			"unit":  d.UnitNumber,
			"kind":  d.Kind,
		}).Error(d.Detail)
	}
	e := events.New(events.IntegrityAlarm, cargoID)
	e.Discrepancies = found
	e.Message = "unit flags and placement log disagree"
	svc.publish(ctx, log, e)
}

// publish never fails the request: the placement is already committed.
func (svc *Service) publish(ctx context.Context, log logrus.FieldLogger, e events.Event) {
	if err := svc.events.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("event", e.Type).Warn("failed to publish event")
	}
}
