package shopify

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// === GraphQL envelope ===

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []graphQLError  `json:"errors"`
	Extensions *extensions     `json:"extensions"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type extensions struct {
	Cost *queryCost `json:"cost"`
}

type queryCost struct {
	RequestedQueryCost float64        `json:"requestedQueryCost"`
	ThrottleStatus     throttleStatus `json:"throttleStatus"`
}

type throttleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// userError is the userErrors shape shared by every mutation.
type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// === Catalog ===

type variantsData struct {
	ProductVariants struct {
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Nodes []variantNode `json:"nodes"`
	} `json:"productVariants"`
}

type variantNode struct {
	ID             string    `json:"id"`
	SKU            string    `json:"sku"`
	Price          string    `json:"price"`
	CompareAtPrice *string   `json:"compareAtPrice"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Product        struct {
		ID string `json:"id"`
	} `json:"product"`
	Metafield *struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"metafield"`
}

type bulkUpdateData struct {
	ProductVariantsBulkUpdate struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"productVariantsBulkUpdate"`
}

type metafieldsDeleteData struct {
	MetafieldsDelete struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"metafieldsDelete"`
}

type subscriptionData struct {
	CurrentAppInstallation struct {
		ActiveSubscriptions []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"activeSubscriptions"`
	} `json:"currentAppInstallation"`
}

// === Bulk operations ===

type stagedUploadsData struct {
	StagedUploadsCreate struct {
		StagedTargets []struct {
			URL         string `json:"url"`
			ResourceURL string `json:"resourceUrl"`
			Parameters  []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"parameters"`
		} `json:"stagedTargets"`
		UserErrors []userError `json:"userErrors"`
	} `json:"stagedUploadsCreate"`
}

type bulkOperationNode struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	ErrorCode   string  `json:"errorCode"`
	ObjectCount flexInt `json:"objectCount"`
	URL         *string `json:"url"`
}

type runMutationData struct {
	BulkOperationRunMutation struct {
		BulkOperation *bulkOperationNode `json:"bulkOperation"`
		UserErrors    []userError        `json:"userErrors"`
	} `json:"bulkOperationRunMutation"`
}

type nodeData struct {
	Node *bulkOperationNode `json:"node"`
}

type currentBulkData struct {
	CurrentBulkOperation *bulkOperationNode `json:"currentBulkOperation"`
}

type cancelData struct {
	BulkOperationCancel struct {
		UserErrors []userError `json:"userErrors"`
	} `json:"bulkOperationCancel"`
}

// flexInt decodes UnsignedInt64 values, which the API serializes as strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
