package notification

import (
	"time"

	"erp-approval-middleware/internal/domain/decision"
)

type Channel string

const (
	ChannelDetect    Channel = Channel(decision.EventDetect)
	ChannelApprove   Channel = Channel(decision.EventApprove)
	ChannelReject    Channel = Channel(decision.EventReject)
	ChannelUndo      Channel = Channel(decision.EventUndo)
	ChannelScheduler Channel = Channel(decision.EventScheduler)
	ChannelEmail     Channel = "email"
	ChannelSlack     Channel = "slack"
)

var Channels = []Channel{
	ChannelDetect, ChannelApprove, ChannelReject, ChannelUndo,
	ChannelScheduler, ChannelEmail, ChannelSlack,
}

func (c Channel) Valid() bool {
	for _, v := range Channels {
		if c == v {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Table: notification_logs. Rows are write-once.
type Entry struct {
	ID               uint64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DecisionID       string           `gorm:"column:decision_id;type:char(32);not null;index" json:"decision_id"`
	ErpRequisitionID string           `gorm:"column:erp_requisition_id;size:50;not null;index" json:"erp_requisition_id"`
	Channel          Channel          `gorm:"column:channel;size:20;not null;index" json:"channel"`
	Verdict          decision.Verdict `gorm:"column:decision;size:20;not null" json:"decision"`
	State            decision.State   `gorm:"column:state;size:20;not null" json:"state"`
	Status           Status           `gorm:"column:status;size:10;not null;default:'sent'" json:"status"`
	Message          string           `gorm:"column:message;type:text" json:"message"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (Entry) TableName() string { return "notification_logs" }

// FromDecision snapshots the decision's current verdict and state.
func FromDecision(d *decision.Decision, ch Channel, status Status, msg string) *Entry {
	return &Entry{
		DecisionID:       d.ID,
		ErpRequisitionID: d.ErpRequisitionID,
		Channel:          ch,
		Verdict:          d.Verdict,
		State:            d.State,
		Status:           status,
		Message:          msg,
	}
}
