// Command reset wipes the learner graph in batches. It refuses to run
// without the -yes flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/learnergraph-backend/internal/platform/envutil"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
	"github.com/yungbote/learnergraph-backend/internal/platform/neo4jdb"
)

func main() {
	yes := flag.Bool("yes", false, "confirm deletion of every node and relationship")
	batch := flag.Int("batch", 10000, "nodes deleted per transaction")
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !*yes {
		fmt.Println("refusing to wipe the graph without -yes")
		os.Exit(1)
	}

	if err := run(context.Background(), log, *batch); err != nil {
		log.Error("reset failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, batch int) error {
	client, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	uri := envutil.Str("NEO4J_URI", "")
	log.Info("wiping graph", "uri", uri, "batch", batch)

	var total int64
	for {
		deleted, err := deleteBatch(ctx, session, batch)
		if err != nil {
			return fmt.Errorf("reset: delete batch: %w", err)
		}
		total += deleted
		if deleted == 0 {
			break
		}
		log.Info("batch deleted", "nodes", deleted, "total", total)
	}
	log.Info("graph wiped", "nodes_deleted", total)
	return nil
}

func deleteBatch(ctx context.Context, session neo4j.SessionWithContext, batch int) (int64, error) {
	res, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (n) WITH n LIMIT $batch DETACH DELETE n",
			map[string]any{"batch": batch})
		if err != nil {
			return nil, err
		}
		summary, err := result.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return int64(summary.Counters().NodesDeleted()), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}
