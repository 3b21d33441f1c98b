package wire

import "github.com/Snider/Fabric/pkg/value"

// Type identifies the shape of a Message body. The set is exhaustive per
// the wire protocol's external interfaces.
type Type string

const (
	// Peer <-> Tracker
	TypeRegister           Type = "REGISTER"
	TypeUnregister         Type = "UNREGISTER"
	TypeUpdateLoad         Type = "UPDATE_LOAD"
	TypeRequestCPU         Type = "REQUEST_CPU"
	TypeCPUResponse        Type = "CPU_RESPONSE"
	TypeRegisterFile       Type = "REGISTER_FILE"
	TypeFindFile           Type = "FIND_FILE"
	TypeFilePeers          Type = "FILE_PEERS"
	TypeRegisterOwnedFile  Type = "REGISTER_OWNED_FILE"
	TypeFindOwnedFile      Type = "FIND_OWNED_FILE"
	TypeOwnedFileResponse  Type = "OWNED_FILE_RESPONSE"
	TypeReportOwnedFiles   Type = "REPORT_OWNED_FILES"
	TypeListOwnedFiles     Type = "LIST_OWNED_FILES"
	TypeDeleteOwnedFile    Type = "DELETE_OWNED_FILE"
	TypeStatus             Type = "STATUS"

	// Client <-> Peer
	TypeCPUTask       Type = "CPU_TASK"
	TypeCPUResult     Type = "CPU_RESULT"
	TypeCancelTask    Type = "CANCEL_TASK"
	TypeBatchTask     Type = "BATCH_TASK"
	TypeBatchResult   Type = "BATCH_RESULT"
	TypeTaskHistory   Type = "TASK_HISTORY"
	TypeSetMem        Type = "SET_MEM"
	TypeGetMem        Type = "GET_MEM"
	TypeMemResponse   Type = "MEM_RESPONSE"
	TypeSetMemRemote  Type = "SET_MEM_REMOTE"
	TypeGetMemRemote  Type = "GET_MEM_REMOTE"
	TypePutFile       Type = "PUT_FILE"
	TypeGetFile       Type = "GET_FILE"
	TypeFileResponse  Type = "FILE_RESPONSE"
	TypeUploadToPeer  Type = "UPLOAD_TO_PEER"
	TypeGetOwnedFile  Type = "GET_OWNED_FILE"
	TypeError         Type = "ERROR"

	// OS plane
	TypeCreateProcess    Type = "CREATE_PROCESS"
	TypeTerminateProcess Type = "TERMINATE_PROCESS"
	TypeProcessTree      Type = "PROCESS_TREE"
	TypeCreateGroup      Type = "CREATE_GROUP"
	TypeKillGroup        Type = "KILL_GROUP"
	TypeRequestResource  Type = "REQUEST_RESOURCE"
	TypeReleaseResource  Type = "RELEASE_RESOURCE"
	TypeDeadlockCheck    Type = "DEADLOCK_CHECK"
	TypeAllocateMemory   Type = "ALLOCATE_MEMORY"
	TypeDeallocateMemory Type = "DEALLOCATE_MEMORY"
	TypeCreateQueue      Type = "CREATE_QUEUE"
	TypeSendMessage      Type = "SEND_MESSAGE"
	TypeReceiveMessage   Type = "RECEIVE_MESSAGE"
	TypeCreateSemaphore  Type = "CREATE_SEMAPHORE"
	TypeSemaphoreWait    Type = "SEMAPHORE_WAIT"
	TypeSemaphoreSignal  Type = "SEMAPHORE_SIGNAL"
	TypeSetScheduler     Type = "SET_SCHEDULER"

	// Reserved but unimplemented per the multi-peer chunk-download note;
	// kept here so unmarshalling a body naming it reports UnknownMessage
	// rather than silently decoding into the wrong payload.
	TypeGetFileChunk Type = "GET_FILE_CHUNK"
)

// Envelope is the minimal shape every message shares: enough to route
// dispatch before unmarshalling the type-specific payload.
type Envelope struct {
	Type Type `json:"type"`
}

// ErrorBody is the terminal frame sent on any handler failure.
type ErrorBody struct {
	Type  Type   `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func NewErrorBody(code, message string) ErrorBody {
	return ErrorBody{Type: TypeError, Code: code, Error: message}
}

// --- Peer <-> Tracker payloads ---

type RegisterBody struct {
	Type      Type    `json:"type"`
	IP        string  `json:"ip"`
	Port      int     `json:"port"`
	CPULoad   float64 `json:"cpu_load"`
	DurableID string  `json:"durable_id,omitempty"`
	OldIP     string  `json:"old_ip,omitempty"`
}

type RegisterResponse struct {
	Type      Type `json:"type"`
	PeerCount int  `json:"peer_count"`
}

type UnregisterBody struct {
	Type Type   `json:"type"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type UpdateLoadBody struct {
	Type    Type    `json:"type"`
	IP      string  `json:"ip"`
	Port    int     `json:"port"`
	CPULoad float64 `json:"cpu_load"`
}

type RequestCPUBody struct {
	Type Type `json:"type"`
}

type CPUResponseBody struct {
	Type    Type    `json:"type"`
	IP      string  `json:"ip"`
	Port    int     `json:"port"`
	CPULoad float64 `json:"cpu_load"`
}

type RegisterFileBody struct {
	Type     Type   `json:"type"`
	Filename string `json:"filename"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
}

type FindFileBody struct {
	Type     Type   `json:"type"`
	Filename string `json:"filename"`
}

type PeerAddress struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type FilePeersBody struct {
	Type  Type          `json:"type"`
	Peers []PeerAddress `json:"peers"`
}

type OwnerRef struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
	ID   string `json:"id,omitempty"`
}

type RegisterOwnedFileBody struct {
	Type     Type     `json:"type"`
	Filename string   `json:"filename"`
	Owner    OwnerRef `json:"owner"`
	Storage  OwnerRef `json:"storage"`
}

type FindOwnedFileBody struct {
	Type      Type     `json:"type"`
	Filename  string   `json:"filename"`
	Requester OwnerRef `json:"requester"`
}

type OwnedFileResponseBody struct {
	Type     Type          `json:"type"`
	Filename string        `json:"filename"`
	Owner    OwnerRef      `json:"owner"`
	Storage  []PeerAddress `json:"storage"`
}

type ReportOwnedFilesEntry struct {
	Filename string   `json:"filename"`
	Owner    OwnerRef `json:"owner"`
}

type ReportOwnedFilesBody struct {
	Type    Type                    `json:"type"`
	Storage OwnerRef                `json:"storage"`
	Files   []ReportOwnedFilesEntry `json:"files"`
}

type ListOwnedFilesBody struct {
	Type      Type     `json:"type"`
	Requester OwnerRef `json:"requester"`
}

type ListOwnedFilesResponse struct {
	Type  Type                    `json:"type"`
	Files []ReportOwnedFilesEntry `json:"files"`
}

type DeleteOwnedFileBody struct {
	Type      Type     `json:"type"`
	Filename  string   `json:"filename"`
	Requester OwnerRef `json:"requester"`
}

type StatusBody struct {
	Type Type `json:"type"`
}

type TrackerStatusResponse struct {
	Type        Type    `json:"type"`
	PeerCount   int     `json:"peer_count"`
	AverageLoad float64 `json:"average_load"`
}

// --- Client <-> Peer payloads ---

type CPUTaskBody struct {
	Type          Type          `json:"type"`
	TaskID        string        `json:"task_id"`
	ProgramSource string        `json:"program_source"`
	FunctionName  string        `json:"function_name"`
	Args          []value.Value `json:"args"`
	Confidential  bool          `json:"confidential,omitempty"`
	Priority      int           `json:"priority,omitempty"`
	MaxRetries    int           `json:"max_retries,omitempty"`
	TimeoutMS     int64         `json:"timeout_ms,omitempty"`
	Forwarded     bool          `json:"forwarded,omitempty"`
}

type CPUResultBody struct {
	Type        Type         `json:"type"`
	TaskID      string       `json:"task_id"`
	Result      value.Value  `json:"result"`
	ExecutedBy  string       `json:"executed_by"`
	FromCache   bool         `json:"from_cache,omitempty"`
	ElapsedMS   int64        `json:"elapsed_ms"`
}

type CancelTaskBody struct {
	Type   Type   `json:"type"`
	TaskID string `json:"task_id"`
}

type CancelTaskResponse struct {
	Type      Type `json:"type"`
	Cancelled bool `json:"cancelled"`
}

type BatchTaskBody struct {
	Type  Type          `json:"type"`
	Tasks []CPUTaskBody `json:"tasks"`
}

type BatchResultBody struct {
	Type    Type            `json:"type"`
	Results []CPUResultBody `json:"results"`
}

type TaskHistoryBody struct {
	Type  Type `json:"type"`
	Limit int  `json:"limit,omitempty"`
}

type TaskHistoryEntry struct {
	TaskID      string `json:"task_id"`
	Success     bool   `json:"success"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	ExecutedBy  string `json:"executed_by"`
	Role        string `json:"role"`
	CompletedAt int64  `json:"completed_at"`
}

type TaskHistoryResponse struct {
	Type    Type               `json:"type"`
	Entries []TaskHistoryEntry `json:"entries"`
}

type SetMemBody struct {
	Type  Type        `json:"type"`
	Key   string      `json:"key"`
	Value value.Value `json:"value"`
}

type GetMemBody struct {
	Type Type   `json:"type"`
	Key  string `json:"key"`
}

type MemResponseBody struct {
	Type  Type        `json:"type"`
	Key   string      `json:"key"`
	Value value.Value `json:"value"`
	Found bool        `json:"found"`
}

type PutFileBody struct {
	Type           Type   `json:"type"`
	Filename       string `json:"filename"`
	ContentBase64  string `json:"content"`
}

type GetFileBody struct {
	Type     Type   `json:"type"`
	Filename string `json:"filename"`
}

type FileResponseBody struct {
	Type          Type   `json:"type"`
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content"`
}

type UploadToPeerBody struct {
	Type             Type   `json:"type"`
	Filename         string `json:"filename"`
	CiphertextBase64 string `json:"ciphertext"`
	OwnerIP          string `json:"owner_ip"`
	OwnerPort        int    `json:"owner_port"`
	Replication      int    `json:"replication,omitempty"`
}

type UploadToPeerResponse struct {
	Type       Type          `json:"type"`
	Stored     []PeerAddress `json:"stored"`
	Failed     []PeerAddress `json:"failed"`
}

type GetOwnedFileBody struct {
	Type          Type   `json:"type"`
	Filename      string `json:"filename"`
	RequesterIP   string `json:"requester_ip"`
	RequesterPort int    `json:"requester_port"`
}

type GetOwnedFileResponse struct {
	Type             Type   `json:"type"`
	Filename         string `json:"filename"`
	CiphertextBase64 string `json:"ciphertext"`
}

// --- OS plane payloads ---

type CreateProcessBody struct {
	Type     Type              `json:"type"`
	Parent   string            `json:"parent,omitempty"`
	Group    string            `json:"group,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CreateProcessResponse struct {
	Type Type   `json:"type"`
	PID  string `json:"pid"`
}

type TerminateProcessBody struct {
	Type Type   `json:"type"`
	PID  string `json:"pid"`
}

type ProcessTreeBody struct {
	Type Type   `json:"type"`
	Root string `json:"root,omitempty"`
}

// ProcessTreeNode is one node of a ProcessTreeResponse.
type ProcessTreeNode struct {
	PID      string             `json:"pid"`
	PPID     string             `json:"ppid,omitempty"`
	State    string             `json:"state"`
	Priority int                `json:"priority"`
	Children []*ProcessTreeNode `json:"children,omitempty"`
}

// ProcessTreeResponse carries either a single rooted Tree (Root set) or
// a forest of Roots (root pid omitted from the request).
type ProcessTreeResponse struct {
	Type           Type               `json:"type"`
	Tree           *ProcessTreeNode   `json:"tree,omitempty"`
	Roots          []*ProcessTreeNode `json:"roots,omitempty"`
	TotalProcesses int                `json:"total_processes,omitempty"`
}

type CreateGroupBody struct {
	Type  Type     `json:"type"`
	Group string   `json:"group"`
	PIDs  []string `json:"pids"`
}

type KillGroupBody struct {
	Type  Type   `json:"type"`
	Group string `json:"group"`
}

type KillGroupResponse struct {
	Type      Type `json:"type"`
	Count     int  `json:"count"`
}

type RequestResourceBody struct {
	Type       Type   `json:"type"`
	PID        string `json:"pid"`
	ResourceID string `json:"resource_id"`
	Units      int    `json:"units"`
}

type ReleaseResourceBody struct {
	Type       Type   `json:"type"`
	PID        string `json:"pid"`
	ResourceID string `json:"resource_id"`
	Units      int    `json:"units"`
}

type DeadlockCheckBody struct {
	Type Type `json:"type"`
}

type DeadlockCheckResponse struct {
	Type       Type     `json:"type"`
	Deadlocked bool     `json:"deadlocked"`
	PIDs       []string `json:"pids"`
}

type AllocateMemoryBody struct {
	Type Type   `json:"type"`
	PID  string `json:"pid"`
	Size int    `json:"size"`
}

type AllocateMemoryResponse struct {
	Type    Type `json:"type"`
	Address int  `json:"address"`
}

type DeallocateMemoryBody struct {
	Type Type   `json:"type"`
	PID  string `json:"pid"`
}

type CreateQueueBody struct {
	Type     Type `json:"type"`
	Capacity int  `json:"capacity"`
}

type CreateQueueResponse struct {
	Type    Type   `json:"type"`
	QueueID string `json:"queue_id"`
}

type SendMessageBody struct {
	Type     Type        `json:"type"`
	QueueID  string      `json:"queue_id"`
	Receiver string      `json:"receiver"`
	Payload  value.Value `json:"payload"`
}

type ReceiveMessageBody struct {
	Type     Type   `json:"type"`
	QueueID  string `json:"queue_id"`
	Receiver string `json:"receiver"`
}

type ReceiveMessageResponse struct {
	Type    Type        `json:"type"`
	Found   bool        `json:"found"`
	Payload value.Value `json:"payload"`
}

type CreateSemaphoreBody struct {
	Type  Type `json:"type"`
	Count int  `json:"count"`
}

type CreateSemaphoreResponse struct {
	Type        Type   `json:"type"`
	SemaphoreID string `json:"semaphore_id"`
}

type SemaphoreWaitBody struct {
	Type        Type   `json:"type"`
	SemaphoreID string `json:"semaphore_id"`
	PID         string `json:"pid"`
}

type SemaphoreWaitResponse struct {
	Type    Type `json:"type"`
	Blocked bool `json:"blocked"`
}

type SemaphoreSignalBody struct {
	Type        Type   `json:"type"`
	SemaphoreID string `json:"semaphore_id"`
}

type SetSchedulerBody struct {
	Type      Type   `json:"type"`
	Algorithm string `json:"algorithm"`
}
