package queue

import (
	"github.com/maheshrc27/clipcast/internal/service"
)

type Queue struct {
	ds service.DispatchService
	rs service.ReconcileService
}

func NewQueue(ds service.DispatchService, rs service.ReconcileService) *Queue {
	return &Queue{
		ds: ds,
		rs: rs,
	}
}

const (
	TaskTypeDispatch  = "dispatch:platform"
	TaskTypeReconcile = "dispatch:reconcile"
)

type DispatchPayload struct {
	Platform string `json:"platform"`
	OwnerID  string `json:"owner_id,omitempty"`
}
