package repository

import (
	"slices"

	"github.com/tphakala/reviewdash/internal/datastore"
)

// DefaultBatchSize is used when no batch size is configured
const DefaultBatchSize = 5000

// shadowSuffix names the table a shadow swap loads into
const shadowSuffix = "_shadow"

// retiredSuffix names the live table while it is being swapped out
const retiredSuffix = "_retired"

// replaceableTables are the tables loaded wholesale from the warehouse
var replaceableTables = []string{
	datastore.TableContributor,
	datastore.TableTaskReviewedInfo,
	datastore.TableTask,
	datastore.TableReviewDetail,
}

// IsReplaceable reports whether table may be replaced wholesale.
func IsReplaceable(table string) bool {
	return slices.Contains(replaceableTables, table)
}
