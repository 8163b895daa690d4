package domain

// JobName идентифицирует периодическую задачу.
type JobName string

const (
	// JobNotificationQueue обрабатывает созревшие запросы очереди.
	JobNotificationQueue JobName = "notification_queue"
	// JobContestDeadlines рассылает сводку о скорых дедлайнах.
	JobContestDeadlines JobName = "contest_deadlines"
	// JobReceiptCleanup сверяет квитанции и удаляет мёртвые токены.
	JobReceiptCleanup JobName = "receipt_cleanup"
)
