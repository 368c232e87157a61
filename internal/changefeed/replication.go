package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"go.uber.org/zap"
)

const (
	DefaultSlot           = "disaster_feed"
	standbyMessageTimeout = 10 * time.Second
	duplicateObject       = "42710"
)

// ReplicationSource reads wal2json output from a logical replication slot.
// DSN must not carry replication=database; it is added here.
type ReplicationSource struct {
	DSN    string
	Slot   string
	Tables []string
	Logger *zap.Logger
}

func (s *ReplicationSource) slot() string {
	if s.Slot == "" {
		return DefaultSlot
	}
	return s.Slot
}

func (s *ReplicationSource) pluginArgs() []string {
	tables := s.Tables
	if len(tables) == 0 {
		tables = []string{"public." + TableDisasters, "public." + TableResources}
	}
	return []string{
		`"include-timestamp" 'false'`,
		fmt.Sprintf(`"add-tables" '%s'`, strings.Join(tables, ",")),
	}
}

func (s *ReplicationSource) Stream(ctx context.Context, fn func(Change)) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.Named("replication").With(zap.String("slot", s.slot()))

	cfg, err := pgconn.ParseConfig(s.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["replication"] = "database"

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	sys, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("identify system: %w", err)
	}
	logger.Info("identified system",
		zap.String("systemID", sys.SystemID),
		zap.Int32("timeline", sys.Timeline),
		zap.String("xlogpos", sys.XLogPos.String()),
		zap.String("db", sys.DBName),
	)

	_, err = pglogrepl.CreateReplicationSlot(ctx, conn, s.slot(), "wal2json", pglogrepl.CreateReplicationSlotOptions{})
	var pgErr *pgconn.PgError
	if err != nil && !(errors.As(err, &pgErr) && pgErr.Code == duplicateObject) {
		return fmt.Errorf("create slot: %w", err)
	}

	err = pglogrepl.StartReplication(ctx, conn, s.slot(), sys.XLogPos,
		pglogrepl.StartReplicationOptions{PluginArgs: s.pluginArgs()})
	if err != nil {
		return fmt.Errorf("start replication: %w", err)
	}
	logger.Info("logical replication started")

	var lastLSN pglogrepl.LSN
	nextStandby := time.Now().Add(standbyMessageTimeout)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(nextStandby) && lastLSN != 0 {
			err = pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{WALWritePosition: lastLSN})
			if err != nil {
				return fmt.Errorf("standby status update: %w", err)
			}
			logger.Debug("sent standby status", zap.String("lsn", lastLSN.String()))
			nextStandby = time.Now().Add(standbyMessageTimeout)
		}

		recvCtx, cancel := context.WithDeadline(ctx, nextStandby)
		rawMsg, err := conn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("wal error: %s", errMsg.Message)
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok || len(msg.Data) == 0 {
			logger.Debug("unexpected message", zap.String("type", fmt.Sprintf("%T", rawMsg)))
			continue
		}

		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				logger.Warn("bad keepalive", zap.Error(err))
				continue
			}
			if pkm.ServerWALEnd > lastLSN {
				lastLSN = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				nextStandby = time.Time{}
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				logger.Warn("bad xlogdata", zap.Error(err))
				continue
			}
			lastLSN = xld.WALStart + pglogrepl.LSN(len(xld.WALData))

			changes, err := DecodeWal2JSON(xld.WALData)
			if err != nil {
				logger.Warn("dropping transaction", zap.Error(err))
				continue
			}
			for _, ch := range changes {
				fn(ch)
			}
		}
	}
}
