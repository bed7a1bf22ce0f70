package events

import "encoding/json"

type ItemType string

const (
	ItemTypeMessage             ItemType = "message"
	ItemTypeFunctionCall        ItemType = "function_call"
	ItemTypeFunctionCallOutput  ItemType = "function_call_output"
	ItemTypeMCPCall             ItemType = "mcp_call"
	ItemTypeMCPListTools        ItemType = "mcp_list_tools"
	ItemTypeMCPApprovalRequest  ItemType = "mcp_approval_request"
	ItemTypeMCPApprovalResponse ItemType = "mcp_approval_response"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusIncomplete ItemStatus = "incomplete"
)

type ContentType string

const (
	ContentTypeText        ContentType = "text"
	ContentTypeAudio       ContentType = "audio"
	ContentTypeInputText   ContentType = "input_text"
	ContentTypeInputAudio  ContentType = "input_audio"
	ContentTypeInputImage  ContentType = "input_image"
	ContentTypeOutputText  ContentType = "output_text"
	ContentTypeOutputAudio ContentType = "output_audio"
)

// IsAudio reports whether the part carries audio and an optional transcript.
func (t ContentType) IsAudio() bool {
	return t == ContentTypeAudio || t == ContentTypeInputAudio || t == ContentTypeOutputAudio
}

// Item is a node of the conversation.
type Item struct {
	ID                string          `json:"id,omitempty"`
	Object            string          `json:"object,omitempty"`
	Type              ItemType        `json:"type"`
	Status            ItemStatus      `json:"status,omitempty"`
	Role              Role            `json:"role,omitempty"`
	Content           []ContentPart   `json:"content,omitempty"`
	CallID            string          `json:"call_id,omitempty"`
	Name              string          `json:"name,omitempty"`
	Arguments         string          `json:"arguments,omitempty"`
	Output            string          `json:"output,omitempty"`
	ServerLabel       string          `json:"server_label,omitempty"`
	ApprovalRequestID string          `json:"approval_request_id,omitempty"`
	Approve           *bool           `json:"approve,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	Tools             []MCPToolInfo   `json:"tools,omitempty"`
	Error             json.RawMessage `json:"error,omitempty"`
}

// ContentPart is one part of a message item.
type ContentPart struct {
	Type       ContentType  `json:"type"`
	Text       string       `json:"text,omitempty"`
	Audio      string       `json:"audio,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Format     *AudioFormat `json:"format,omitempty"`
	ImageURL   string       `json:"image_url,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	c := i
	c.Content = append([]ContentPart(nil), i.Content...)
	c.Tools = append([]MCPToolInfo(nil), i.Tools...)
	if i.Approve != nil {
		v := *i.Approve
		c.Approve = &v
	}
	if i.Error != nil {
		c.Error = append(json.RawMessage(nil), i.Error...)
	}
	return c
}

func NewUserText(text string) Item {
	return Item{
		Type: ItemTypeMessage,
		Role: RoleUser,
		Content: []ContentPart{
			{Type: ContentTypeInputText, Text: text},
		},
	}
}

func NewSystemText(text string) Item {
	return Item{
		Type: ItemTypeMessage,
		Role: RoleSystem,
		Content: []ContentPart{
			{Type: ContentTypeInputText, Text: text},
		},
	}
}

func NewFunctionCallOutput(callID, output string) Item {
	return Item{
		Type:   ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: output,
	}
}

func NewMCPApprovalResponse(approvalRequestID string, approve bool, reason string) Item {
	return Item{
		Type:              ItemTypeMCPApprovalResponse,
		Status:            ItemStatusCompleted,
		ApprovalRequestID: approvalRequestID,
		Approve:           Bool(approve),
		Reason:            reason,
	}
}
