package application

import "context"

// UnitOfWork scopes one transaction over storage. The engines append
// schedule versions and stage outbox notifications through it so a person's
// status change and its notifications commit or vanish together. Begin
// nests: inside an open transaction it joins rather than opening a second
// one, which lets the dispatcher wrap both engines in a single commit.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc runs against the transactional context produced by Begin.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork runs fn inside a transaction: rolled back when fn errors,
// committed otherwise.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) error {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}

	return uow.Commit(txCtx)
}
