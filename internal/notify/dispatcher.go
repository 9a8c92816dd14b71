package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacklok/seatwatch/internal/course"
)

// CourseRef identifies the course inside a notification payload
type CourseRef struct {
	ClassID  string          `json:"class_id"`
	CRN      string          `json:"crn"`
	Year     int             `json:"year"`
	Semester course.Semester `json:"semester"`
}

// Payload is the JSON body of an "course is open" notification
type Payload struct {
	UserID  string    `json:"user_id"`
	Email   string    `json:"email"`
	Course  CourseRef `json:"course"`
	Message string    `json:"message"`
}

// DispatchResult describes a published notification
type DispatchResult struct {
	MessageID string  `json:"message_id"`
	Payload   Payload `json:"payload"`
}

// Dispatcher publishes notifications to a single topic
type Dispatcher struct {
	transport Transport
	topic     string
}

// NewDispatcher creates a dispatcher. An empty topic makes every call fail with ErrNotConfigured.
func NewDispatcher(transport Transport, topic string) *Dispatcher {
	return &Dispatcher{transport: transport, topic: topic}
}

// Notify publishes one message telling userID that c is open
func (d *Dispatcher) Notify(ctx context.Context, userID, email string, c *course.TrackedCourse) (*DispatchResult, error) {
	if d.topic == "" || d.transport == nil {
		return nil, ErrNotConfigured
	}

	payload := NewPayload(userID, email, c)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	msg := Message{
		Subject: Subject(c),
		Body:    body,
		Attributes: map[string]string{
			"user_id":   userID,
			"course_id": c.ID,
		},
	}

	id, err := d.transport.Publish(ctx, d.topic, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return &DispatchResult{MessageID: id, Payload: payload}, nil
}

// Subscribe registers an endpoint on the dispatcher's topic
func (d *Dispatcher) Subscribe(ctx context.Context, protocol Protocol, endpoint string) (string, error) {
	if d.topic == "" || d.transport == nil {
		return "", ErrNotConfigured
	}
	id, err := d.transport.Subscribe(ctx, d.topic, protocol, endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	return id, nil
}

// NewPayload builds the notification body for a user and course
func NewPayload(userID, email string, c *course.TrackedCourse) Payload {
	return Payload{
		UserID: userID,
		Email:  email,
		Course: CourseRef{
			ClassID:  c.ID,
			CRN:      c.CRN,
			Year:     c.Year,
			Semester: c.Semester,
		},
		Message: fmt.Sprintf("Good news! Your tracked course %s for %s %d is now OPEN for registration.",
			c.CRN, c.Semester, c.Year),
	}
}

// Subject returns the notification subject line for c
func Subject(c *course.TrackedCourse) string {
	return fmt.Sprintf("Course %s is now OPEN!", c.CRN)
}
