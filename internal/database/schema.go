package database

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    email VARCHAR(255) PRIMARY KEY,
    password_hash VARCHAR(255) NOT NULL,
    api_token VARCHAR(64) NOT NULL UNIQUE,
    credits INT NOT NULL DEFAULT 3,
    subscribed TINYINT(1) NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS qa_history (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    account_id VARCHAR(255) NOT NULL,
    question TEXT NOT NULL,
    answer MEDIUMTEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_history_account (account_id, id),
    FOREIGN KEY (account_id) REFERENCES accounts(email)
);

CREATE TABLE IF NOT EXISTS payment_intents (
    intent_id VARCHAR(36) PRIMARY KEY,
    account_id VARCHAR(255) NOT NULL,
    phone VARCHAR(20) NOT NULL,
    amount INT NOT NULL,
    requested_credits INT NOT NULL,
    status VARCHAR(16) NOT NULL,
    gateway_ref VARCHAR(64),
    result_code INT,
    result_desc VARCHAR(255),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    resolved_at TIMESTAMP NULL,
    INDEX idx_intents_gateway_ref (gateway_ref),
    INDEX idx_intents_status_created (status, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(email)
)
`
