package dto

import (
	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// ToQueueSettingsDTO converts domain.QueueSettings to its wire form
func ToQueueSettingsDTO(s domain.QueueSettings) QueueSettingsDTO {
	return QueueSettingsDTO{
		MaxUnconfirmedMessages:  s.MaxUnconfirmedMessages,
		MaxUnconfirmedBytes:     s.MaxUnconfirmedBytes,
		ConsumerPriority:        s.ConsumerPriority,
		SuspendsOnBadHostHealth: s.SuspendsOnBadHostHealth,
	}
}

// ToQueueSettings converts wire settings to domain.QueueSettings
func ToQueueSettings(d QueueSettingsDTO) domain.QueueSettings {
	return domain.QueueSettings{
		MaxUnconfirmedMessages:  d.MaxUnconfirmedMessages,
		MaxUnconfirmedBytes:     d.MaxUnconfirmedBytes,
		ConsumerPriority:        d.ConsumerPriority,
		SuspendsOnBadHostHealth: d.SuspendsOnBadHostHealth,
	}
}

// ToPropertyDTOs converts raw properties to their wire form
func ToPropertyDTOs(props []domain.RawProperty) []PropertyDTO {
	if len(props) == 0 {
		return nil
	}
	out := make([]PropertyDTO, 0, len(props))
	for _, p := range props {
		out = append(out, PropertyDTO{Name: p.Name, Type: int(p.Type), Value: p.Value})
	}
	return out
}

// ToRawProperties converts wire properties to domain.RawProperty.
// Unknown types are passed through for the receiver to report.
func ToRawProperties(props []PropertyDTO) []domain.RawProperty {
	if len(props) == 0 {
		return nil
	}
	out := make([]domain.RawProperty, 0, len(props))
	for _, p := range props {
		out = append(out, domain.RawProperty{Name: p.Name, Type: domain.PropertyType(p.Type), Value: p.Value})
	}
	return out
}

// ToAckRecordResponse converts a journaled ack to its API form
func ToAckRecordResponse(r *domain.AckRecord) *AckRecordResponse {
	if r == nil {
		return nil
	}
	resp := &AckRecordResponse{
		GUID:       r.GUID,
		QueueURI:   r.QueueURI,
		Status:     int(r.Status),
		StatusName: r.StatusName,
		ClientID:   r.ClientID,
		PostedAt:   r.PostedAt,
		AckedAt:    r.AckedAt,
	}
	if resp.StatusName == "" {
		resp.StatusName = r.Status.String()
	}
	if !r.PostedAt.IsZero() && r.AckedAt.After(r.PostedAt) {
		resp.LatencyMS = r.AckedAt.Sub(r.PostedAt).Milliseconds()
	}
	return resp
}

// ToAckListResponse converts the acks of a queue to their API form
func ToAckListResponse(records []*domain.AckRecord, queueURI string) *AckListResponse {
	acks := make([]*AckRecordResponse, 0, len(records))
	for _, r := range records {
		acks = append(acks, ToAckRecordResponse(r))
	}
	return &AckListResponse{
		Acks:     acks,
		Total:    len(acks),
		QueueURI: queueURI,
	}
}
