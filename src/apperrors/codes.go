package apperrors

// Stable machine-readable error codes shared with the dashboard and API clients.
const (
	CodeInternal         = "INTERNAL_SERVER_ERROR"
	CodeApplication      = "APPLICATION_ERROR"
	CodeCircuitOpen      = "CIRCUIT_BREAKER_OPEN"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeRequiredField    = "REQUIRED_FIELD"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeDatabase         = "DATABASE_ERROR"
	CodeDatabaseConn     = "DATABASE_CONNECTION_FAILED"
	CodeQueryFailed      = "QUERY_FAILED"
	CodeDuplicateEntry   = "DUPLICATE_ENTRY"
	CodeForeignKey       = "FOREIGN_KEY_CONSTRAINT"
	CodeNotFound         = "NOT_FOUND"
	CodePropertyNotFound = "PROPERTY_NOT_FOUND"
	CodeOwnerNotFound    = "OWNER_NOT_FOUND"
	CodeReservationNF    = "RESERVATION_NOT_FOUND"
	CodeAuthentication   = "AUTHENTICATION_ERROR"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeAuthorization    = "AUTHORIZATION_ERROR"
	CodeInsufficientPerm = "INSUFFICIENT_PERMISSIONS"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeFileProcessing   = "FILE_PROCESSING_ERROR"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidFileType  = "INVALID_FILE_TYPE"
	CodePDFExtraction    = "PDF_EXTRACTION_FAILED"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeGeminiAPI        = "GEMINI_API_ERROR"
	CodeExternalTimeout  = "EXTERNAL_SERVICE_TIMEOUT"
)

// CodeMessage is the default bilingual text for a code.
type CodeMessage struct {
	English    string `json:"english"`
	Portuguese string `json:"portuguese"`
}

var codeMessages = map[string]CodeMessage{
	CodeInternal:         {"Internal server error", "Erro interno do servidor"},
	CodeApplication:      {"Application error", "Erro da aplicação"},
	CodeCircuitOpen:      {"Service temporarily unavailable, circuit breaker open", "Serviço temporariamente indisponível, circuito aberto"},
	CodeRouteNotFound:    {"Route not found", "Rota não encontrada"},
	CodeValidation:       {"Validation failed", "Falha na validação dos dados"},
	CodeRequiredField:    {"Required field is missing", "Campo obrigatório não informado"},
	CodeInvalidFormat:    {"Invalid field format", "Formato de campo inválido"},
	CodeDatabase:         {"Database error", "Erro no banco de dados"},
	CodeDatabaseConn:     {"Database connection failed", "Falha na conexão com o banco de dados"},
	CodeQueryFailed:      {"Database query failed", "Falha na consulta ao banco de dados"},
	CodeDuplicateEntry:   {"Record already exists", "Registro já existe"},
	CodeForeignKey:       {"Related record constraint violated", "Violação de restrição de registro relacionado"},
	CodeNotFound:         {"Resource not found", "Recurso não encontrado"},
	CodePropertyNotFound: {"Property not found", "Propriedade não encontrada"},
	CodeOwnerNotFound:    {"Owner not found", "Proprietário não encontrado"},
	CodeReservationNF:    {"Reservation not found", "Reserva não encontrada"},
	CodeAuthentication:   {"Authentication required", "Autenticação necessária"},
	CodeInvalidToken:     {"Invalid authentication token", "Token de autenticação inválido"},
	CodeTokenExpired:     {"Authentication token expired", "Token de autenticação expirado"},
	CodeAuthorization:    {"Access denied", "Acesso negado"},
	CodeInsufficientPerm: {"Insufficient permissions", "Permissões insuficientes"},
	CodeRateLimit:        {"Too many requests", "Muitas requisições"},
	CodeFileProcessing:   {"File processing failed", "Falha no processamento do arquivo"},
	CodeFileTooLarge:     {"File is too large", "Arquivo muito grande"},
	CodeInvalidFileType:  {"File type not allowed", "Tipo de arquivo não permitido"},
	CodePDFExtraction:    {"Could not extract data from PDF", "Não foi possível extrair dados do PDF"},
	CodeExternalService:  {"External service error", "Erro em serviço externo"},
	CodeGeminiAPI:        {"AI service request failed", "Falha na requisição ao serviço de IA"},
	CodeExternalTimeout:  {"External service timed out", "Tempo esgotado no serviço externo"},
}

// LookupMessage returns the default text for code.
func LookupMessage(code string) (CodeMessage, bool) {
	msg, ok := codeMessages[code]
	return msg, ok
}

// criticalCodes are logged at critical severity whatever their status.
var criticalCodes = map[string]struct{}{
	CodeInternal:        {},
	CodeDatabaseConn:    {},
	CodeDatabase:        {},
	CodeQueryFailed:     {},
	CodeCircuitOpen:     {},
	CodeExternalTimeout: {},
}

// IsCriticalCode reports whether code belongs to the fixed critical set.
func IsCriticalCode(code string) bool {
	_, ok := criticalCodes[code]
	return ok
}
