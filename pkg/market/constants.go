package market

const (
	operationAddItem        = "add_item"
	operationRemoveLine     = "remove_line"
	operationChangeQuantity = "change_quantity"
	operationSetContact     = "set_contact"
	operationClear          = "clear"
	operationSubmit         = "submit"
	operationUpdateLine     = "update_line"
	operationReject         = "reject"
	operationApprove        = "approve"
	operationDirectPurchase = "direct_purchase"
	operationMaterialize    = "materialize"
	operationAdjustKarma    = "adjust_karma"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
