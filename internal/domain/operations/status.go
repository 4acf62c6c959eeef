package operations

const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

const (
	GetStart                  = "GET_START"
	GetInitStart              = "GET_INIT_START"
	GetInitEnd                = "GET_INIT_END"
	GetValidateAssetStart     = "GET_VALIDATE_ASSET_START"
	GetValidateAssetEnd       = "GET_VALIDATE_ASSET_END"
	GetLocalStart             = "GET_LOCAL_START"
	GetLocalGetAssertionStart = "GET_LOCAL_GET_ASSERTION_START"
	GetLocalGetAssertionEnd   = "GET_LOCAL_GET_ASSERTION_END"
	GetLocalGetMetadataStart  = "GET_LOCAL_GET_METADATA_START"
	GetLocalGetMetadataEnd    = "GET_LOCAL_GET_METADATA_END"
	GetLocalEnd               = "GET_LOCAL_END"
	GetNetworkStart           = "GET_NETWORK_START"
	GetNetworkEnd             = "GET_NETWORK_END"
	GetEnd                    = "GET_END"

	QueryInitStart      = "QUERY_INIT_START"
	QueryInitEnd        = "QUERY_INIT_END"
	QueryStart          = "QUERY_START"
	QueryConstructStart = "QUERY_CONSTRUCT_QUERY_START"
	QueryConstructEnd   = "QUERY_CONSTRUCT_QUERY_END"
	QuerySelectStart    = "QUERY_SELECT_QUERY_START"
	QuerySelectEnd      = "QUERY_SELECT_QUERY_END"
	QueryEnd            = "QUERY_END"

	AskStart          = "ASK_START"
	AskFindNodesStart = "ASK_FIND_NODES_START"
	AskFindNodesEnd   = "ASK_FIND_NODES_END"
	AskNetworkStart   = "ASK_NETWORK_START"
	AskNetworkEnd     = "ASK_NETWORK_END"
	AskEnd            = "ASK_END"

	PublishStart          = "PUBLISH_START"
	PublishFindNodesStart = "PUBLISH_FIND_NODES_START"
	PublishFindNodesEnd   = "PUBLISH_FIND_NODES_END"
	PublishReplicateStart = "PUBLISH_REPLICATE_START"
	PublishReplicateEnd   = "PUBLISH_REPLICATE_END"
	PublishEnd            = "PUBLISH_END"

	FinalizationStart          = "PUBLISH_FINALIZATION_START"
	FinalizationReadCacheStart = "PUBLISH_FINALIZATION_READ_CACHED_DATA_START"
	FinalizationReadCacheEnd   = "PUBLISH_FINALIZATION_READ_CACHED_DATA_END"
	FinalizationValidateStart  = "PUBLISH_FINALIZATION_VALIDATE_MERKLE_ROOT_START"
	FinalizationValidateEnd    = "PUBLISH_FINALIZATION_VALIDATE_MERKLE_ROOT_END"
	FinalizationStoreStart     = "PUBLISH_FINALIZATION_STORE_ASSERTION_START"
	FinalizationStoreEnd       = "PUBLISH_FINALIZATION_STORE_ASSERTION_END"
	FinalizationEnd            = "PUBLISH_FINALIZATION_END"
)

// Error kinds recorded on failed operations.
const (
	ErrGetValidateAsset   = "GET_VALIDATE_ASSET_ERROR"
	ErrGetLocal           = "GET_LOCAL_ERROR"
	ErrGetNetwork         = "GET_NETWORK_ERROR"
	ErrGet                = "GET_ERROR"
	ErrLocalQuery         = "LOCAL_QUERY_ERROR"
	ErrAsk                = "ASK_ERROR"
	ErrAskNetwork         = "ASK_NETWORK_ERROR"
	ErrPublish            = "PUBLISH_ERROR"
	ErrPublishNetwork     = "PUBLISH_NETWORK_ERROR"
	ErrFinalization       = "PUBLISH_FINALIZATION_ERROR"
	ErrValidateMerkleRoot = "VALIDATE_MERKLE_ROOT_ERROR"
	ErrStoreAssertion     = "STORE_ASSERTION_ERROR"
	ErrCommandExpired     = "COMMAND_EXPIRED"
	ErrRetriesExhausted   = "COMMAND_RETRIES_EXHAUSTED"
	ErrUnknownCommand     = "UNKNOWN_COMMAND"
	ErrCommandPanic       = "COMMAND_PANIC"
	ErrInvalidCommandData = "INVALID_COMMAND_DATA"
)

var vocabulary = map[Type][]string{
	TypeGet: {
		GetStart, GetInitStart, GetInitEnd, GetValidateAssetStart, GetValidateAssetEnd,
		GetLocalStart, GetLocalGetAssertionStart, GetLocalGetAssertionEnd,
		GetLocalGetMetadataStart, GetLocalGetMetadataEnd, GetLocalEnd,
		GetNetworkStart, GetNetworkEnd, GetEnd,
	},
	TypeQuery: {
		QueryInitStart, QueryInitEnd, QueryStart, QueryConstructStart, QueryConstructEnd,
		QuerySelectStart, QuerySelectEnd, QueryEnd,
	},
	TypeAsk: {
		AskStart, AskFindNodesStart, AskFindNodesEnd, AskNetworkStart, AskNetworkEnd, AskEnd,
	},
	TypePublish: {
		PublishStart, PublishFindNodesStart, PublishFindNodesEnd,
		PublishReplicateStart, PublishReplicateEnd, PublishEnd,
	},
	TypePublishFinalization: {
		FinalizationStart, FinalizationReadCacheStart, FinalizationReadCacheEnd,
		FinalizationValidateStart, FinalizationValidateEnd,
		FinalizationStoreStart, FinalizationStoreEnd, FinalizationEnd,
	},
}

var vocabularySets = func() map[Type]map[string]struct{} {
	out := make(map[Type]map[string]struct{}, len(vocabulary))
	for t, list := range vocabulary {
		set := make(map[string]struct{}, len(list)+2)
		for _, s := range list {
			set[s] = struct{}{}
		}
		set[StatusCompleted] = struct{}{}
		set[StatusFailed] = struct{}{}
		out[t] = set
	}
	return out
}()

// ValidStatus reports whether status belongs to the vocabulary of t.
// Types without a registered vocabulary accept any status.
func ValidStatus(t Type, status string) bool {
	set, ok := vocabularySets[t]
	if !ok {
		return status != ""
	}
	_, ok = set[status]
	return ok
}

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

func KnownTypes() []Type {
	return []Type{TypeGet, TypeQuery, TypeAsk, TypePublish, TypePublishFinalization}
}

// StatusRank orders statuses within the vocabulary of t. Terminal statuses rank last and
// -1 means the status is not part of the vocabulary.
func StatusRank(t Type, status string) int {
	list, ok := vocabulary[t]
	if IsTerminalStatus(status) {
		return len(list)
	}
	if !ok {
		return 0
	}
	for i, s := range list {
		if s == status {
			return i
		}
	}
	return -1
}
