package accounting

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/sharelease/internal/clock"
	"github.com/marmos91/sharelease/internal/logger"
	"github.com/marmos91/sharelease/pkg/backend"
	"github.com/marmos91/sharelease/pkg/expiration"
	"github.com/marmos91/sharelease/pkg/leasedb"
	"github.com/marmos91/sharelease/pkg/leasedb/models"
	"github.com/marmos91/sharelease/pkg/metrics/leasecrawler"
	"github.com/marmos91/sharelease/pkg/sharecrawler"
)

// StarterLeaseDuration is the lifetime granted to an orphan share the
// crawler discovers on disk: 2 months, 5,184,000 seconds.
const StarterLeaseDuration = 2 * 30 * 24 * 60 * 60

// Crawler specializes sharecrawler.Crawler with reconciliation, starter-lease
// issuance, an expiration sweep, and per-cycle statistics. It implements
// sharecrawler.Hooks; the base crawler owns only scheduling.
type Crawler struct {
	ldb     leasedb.LeaseDB
	backend backend.Enumerator
	clock   clock.Clock
	metrics *leasecrawler.Metrics

	mu              sync.Mutex
	policy          *expiration.Policy
	retainedHistory int
	stats           *cycleStats
	numPrefixes     int
}

// cycleStats is the crawler's transient in-memory accumulation for the
// cycle currently in progress; it is serialized into a HistoryEntry at
// cycle end and then discarded.
type cycleStats struct {
	cycleStartTime    int64
	spaceRecovered    SpaceRecovered
	leaseAgeHistogram *leaseAgeHistogram
	leasesPerShare    map[int64]int64
	corruptShares     []CorruptShare
	seenBucketTypes   map[string]map[string]bool // sharetype -> storage_index -> seen
	prefixesDone      int
}

func newCycleStats(now int64) *cycleStats {
	return &cycleStats{
		cycleStartTime:    now,
		leaseAgeHistogram: newLeaseAgeHistogram(),
		leasesPerShare:    make(map[int64]int64),
		seenBucketTypes:   make(map[string]map[string]bool),
	}
}

// New constructs an accounting Crawler. policy may be updated later via
// SetExpirationPolicy.
func New(ldb leasedb.LeaseDB, enumerator backend.Enumerator, policy *expiration.Policy, clk clock.Clock, metrics *leasecrawler.Metrics, retainedHistoryEntries int) *Crawler {
	if clk == nil {
		clk = clock.System{}
	}
	if retainedHistoryEntries <= 0 {
		retainedHistoryEntries = 10
	}
	return &Crawler{
		ldb:             ldb,
		backend:         enumerator,
		clock:           clk,
		metrics:         metrics,
		policy:          policy,
		retainedHistory: retainedHistoryEntries,
		numPrefixes:     len(sharecrawler.Prefixes()),
	}
}

// SetExpirationPolicy replaces the active expiration policy.
func (c *Crawler) SetExpirationPolicy(policy *expiration.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = policy
}

// ExpirationPolicy returns the active expiration policy.
func (c *Crawler) ExpirationPolicy() *expiration.Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// IsExpirationEnabled reports whether the active policy ever expires
// leases.
func (c *Crawler) IsExpirationEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy != nil && c.policy.IsEnabled()
}

// StartedCycle resets the transient cycle accumulator.
func (c *Crawler) StartedCycle(cycle int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = newCycleStats(c.clock.Now())
	c.metrics.SetCycleNumber(cycle)
}

// ProcessPrefixdir reconciles the on-disk shares under prefix with the
// LeaseDB, per spec §4.4 steps 1-7. Discovered orphans get a starter lease;
// vanished records are deleted. The reconciliation itself runs inside one
// LeaseDB transaction so it commits atomically per slice.
func (c *Crawler) ProcessPrefixdir(ctx context.Context, cycle int64, prefix string) error {
	now := c.clock.Now()

	diskShares, err := c.enumerateDiskShares(ctx, prefix)
	if err != nil {
		return fmt.Errorf("accounting: enumerate disk shares for prefix %q: %w", prefix, err)
	}

	return c.ldb.WithTransaction(ctx, func(tx leasedb.Transaction) error {
		dbSharemap, err := tx.GetSharesForPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("get shares for prefix: %w", err)
		}

		c.mu.Lock()
		stats := c.stats
		c.mu.Unlock()

		for key, info := range dbSharemap {
			ages, err := tx.GetLeaseAges(ctx, key.StorageIndex, key.Shnum, now)
			if err != nil {
				return fmt.Errorf("get lease ages for (%s, %d): %w", key.StorageIndex, key.Shnum, err)
			}
			for _, age := range ages {
				stats.leaseAgeHistogram.add(age)
			}
			stats.leasesPerShare[int64(len(ages))]++

			stats.spaceRecovered.addExamined(info.Sharetype, info.UsedSpace)
			if info.Sharetype == "corrupted" {
				stats.corruptShares = append(stats.corruptShares, CorruptShare{StorageIndexB32: key.StorageIndex, Shnum: key.Shnum})
			}
			if stats.seenBucketTypes[info.Sharetype] == nil {
				stats.seenBucketTypes[info.Sharetype] = make(map[string]bool)
			}
			stats.seenBucketTypes[info.Sharetype][key.StorageIndex] = true

			c.metrics.RecordExamined(info.Sharetype, 1, info.UsedSpace)
		}

		dbShares := make(map[leasedb.ShareKey]leasedb.ShareInfo, len(dbSharemap))
		for k, v := range dbSharemap {
			dbShares[k] = v
		}

		// Discovered orphans: disk_shares \ db_shares.
		for key := range diskShares {
			if _, ok := dbShares[key]; ok {
				continue
			}
			usedSpace, err := c.backend.UsedSpace(ctx, prefix, key.StorageIndex, key.Shnum)
			if err != nil {
				logger.ErrorCtx(ctx, "accounting: backend used_space failed, skipping orphan this cycle",
					logger.StorageIndex(key.StorageIndex), logger.Shnum(key.Shnum), logger.Err(err))
				continue
			}
			if err := tx.AddNewShare(ctx, key.StorageIndex, key.Shnum, usedSpace, "unknown"); err != nil {
				logger.ErrorCtx(ctx, "accounting: add new share failed, likely race with protocol path",
					logger.StorageIndex(key.StorageIndex), logger.Shnum(key.Shnum), logger.Err(err))
				continue
			}
			shnum := key.Shnum
			if err := tx.AddOrRenewLeases(ctx, key.StorageIndex, &shnum, models.AccountIDStarter, now, now+StarterLeaseDuration); err != nil {
				return fmt.Errorf("add starter lease for (%s, %d): %w", key.StorageIndex, key.Shnum, err)
			}
			c.metrics.RecordOrphanDiscovered()
			logger.InfoCtx(ctx, "accounting: discovered orphan share, issued starter lease",
				logger.StorageIndex(key.StorageIndex), logger.Shnum(key.Shnum), logger.UsedSpace(usedSpace))
		}

		// Vanished shares: db_shares \ disk_shares.
		for key, info := range dbShares {
			if _, ok := diskShares[key]; ok {
				continue
			}
			if err := tx.RemoveDeletedShare(ctx, key.StorageIndex, key.Shnum); err != nil {
				return fmt.Errorf("remove deleted share (%s, %d): %w", key.StorageIndex, key.Shnum, err)
			}
			stats.spaceRecovered.addActualReclaimed(info.Sharetype, info.UsedSpace)
			c.metrics.RecordActual(info.Sharetype, 1, info.UsedSpace)
			c.metrics.RecordVanishedShare()
			logger.InfoCtx(ctx, "accounting: removed vanished share record",
				logger.StorageIndex(key.StorageIndex), logger.Shnum(key.Shnum))
		}

		stats.prefixesDone++
		return nil
	})
}

// enumerateDiskShares lists every (storage_index, shnum) the backend
// reports under prefix.
func (c *Crawler) enumerateDiskShares(ctx context.Context, prefix string) (map[leasedb.ShareKey]struct{}, error) {
	indices, err := c.backend.ListPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	disk := make(map[leasedb.ShareKey]struct{})
	for _, si := range indices {
		shnums, err := c.backend.ListBucket(ctx, prefix, si)
		if err != nil {
			logger.ErrorCtx(ctx, "accounting: backend list_bucket failed, skipping bucket this slice",
				logger.StorageIndex(si), logger.Err(err))
			continue
		}
		for _, shnum := range shnums {
			disk[leasedb.ShareKey{StorageIndex: si, Shnum: shnum}] = struct{}{}
		}
	}
	return disk, nil
}

// FinishedCycle composes and persists the cycle's history entry, then runs
// the expiration sweep.
func (c *Crawler) FinishedCycle(cycle int64) {
	ctx := context.Background()
	now := c.clock.Now()

	c.mu.Lock()
	stats := c.stats
	policy := c.policy
	retained := c.retainedHistory
	c.mu.Unlock()

	for sharetype, byIndex := range stats.seenBucketTypes {
		for range byIndex {
			stats.spaceRecovered.addExaminedBucket(sharetype)
		}
	}

	entry := HistoryEntry{
		CycleStartFinishTimes:   [2]int64{stats.cycleStartTime, now},
		LeaseAgeHistogram:       stats.leaseAgeHistogram.toSortedBins(),
		LeasesPerShareHistogram: make(map[string]int64, len(stats.leasesPerShare)),
		SpaceRecovered:          stats.spaceRecovered,
	}
	for count, numShares := range stats.leasesPerShare {
		entry.LeasesPerShareHistogram[fmt.Sprintf("%d", count)] = numShares
	}
	for _, cs := range stats.corruptShares {
		entry.CorruptShares = append(entry.CorruptShares, [2]any{cs.StorageIndexB32, cs.Shnum})
	}

	if policy != nil {
		params := policy.GetParameters()
		entry.ExpirationEnabled = policy.IsEnabled()
		entry.ConfiguredExpiration = ExpirationMode{
			Mode:                  string(params.Mode),
			OverrideLeaseDuration: params.OverrideLeaseDuration,
			CutoffDate:            params.CutoffDate,
		}
		for _, st := range params.SubjectSharetypes {
			entry.ConfiguredExpiration.SubjectSharetypes = append(entry.ConfiguredExpiration.SubjectSharetypes, string(st))
		}
	}

	c.metrics.RecordCycleDuration(float64(now - stats.cycleStartTime))

	if err := c.ldb.AddHistoryEntry(ctx, cycle, entry, retained); err != nil {
		logger.Error("accounting: failed to persist cycle history", logger.Cycle(int(cycle)), logger.Err(err))
	}

	if policy != nil {
		if err := c.RunExpirationSweep(ctx); err != nil {
			logger.Error("accounting: expiration sweep failed", logger.Cycle(int(cycle)), logger.Err(err))
		}
	}
}

// RunExpirationSweep deletes expired leases, then deletes any share left
// with zero leases: mark GOING, ask the backend to delete the file, and on
// success remove the LeaseDB record. A backend delete failure leaves the
// share in GOING for retry on the next sweep.
func (c *Crawler) RunExpirationSweep(ctx context.Context) error {
	c.mu.Lock()
	policy := c.policy
	c.mu.Unlock()
	if policy == nil {
		return nil
	}

	now := c.clock.Now()
	if _, err := c.ldb.RemoveExpiredLeases(ctx, policy, now); err != nil {
		return fmt.Errorf("remove expired leases: %w", err)
	}

	unleased, err := c.ldb.GetUnleasedShares(ctx, 0)
	if err != nil {
		return fmt.Errorf("get unleased shares: %w", err)
	}

	for _, share := range unleased {
		if err := c.ldb.MarkShareAsGoing(ctx, share.StorageIndex, share.Shnum); err != nil {
			logger.Error("accounting: mark share going failed during sweep",
				logger.StorageIndex(share.StorageIndex), logger.Shnum(share.Shnum), logger.Err(err))
			continue
		}

		prefix := share.StorageIndex[:2]
		if err := c.backend.Delete(ctx, prefix, share.StorageIndex, share.Shnum); err != nil {
			logger.Warn("accounting: backend delete failed, share left GOING for retry",
				logger.StorageIndex(share.StorageIndex), logger.Shnum(share.Shnum), logger.Err(err))
			continue
		}

		if err := c.ldb.RemoveDeletedShare(ctx, share.StorageIndex, share.Shnum); err != nil {
			logger.Error("accounting: remove deleted share failed after backend delete",
				logger.StorageIndex(share.StorageIndex), logger.Shnum(share.Shnum), logger.Err(err))
			continue
		}

		c.metrics.RecordActual(share.Sharetype, 1, share.UsedSpace)
	}

	return nil
}
